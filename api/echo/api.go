package marketecho

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/federation"
	"go.pilab.hu/market/middleware"
	"go.pilab.hu/market/services"
)

const (
	healthPath  = "/api/v1/health"
	metricsPath = "/metrics"
)

// API holds the HTTP handlers and their dependencies.
type API struct {
	accounts *services.AccountService
	auth     *services.AuthService
	catalog  *services.ProductService
	tokens   *services.TokenService
	gate     *middleware.Gate

	limiter          *middleware.RateLimiter
	google           federation.Provider
	frontendRedirect string
	secureCookies    bool
	gatherer         prometheus.Gatherer
	checks           []readinessCheck
}

// ReadinessCheck reports whether a backend can serve requests.
type ReadinessCheck func(ctx context.Context) error

type readinessCheck struct {
	name  string
	check ReadinessCheck
}

// Option configures optional API features.
type Option func(*API)

// WithRateLimiter enables per-caller throttling.
func WithRateLimiter(l *middleware.RateLimiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithGoogle enables the Google sign-in routes. After a successful callback
// the browser is sent to frontendRedirect.
func WithGoogle(p federation.Provider, frontendRedirect string) Option {
	return func(a *API) {
		a.google = p
		a.frontendRedirect = frontendRedirect
	}
}

// WithSecureCookies marks session cookies Secure. Enable behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secureCookies = secure }
}

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// WithReadinessCheck adds a backend probe to /api/v1/health/ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(a *API) { a.checks = append(a.checks, readinessCheck{name: name, check: check}) }
}

// NewAPI initializes the marketplace API.
func NewAPI(
	accounts *services.AccountService,
	auth *services.AuthService,
	catalog *services.ProductService,
	tokens *services.TokenService,
	gate *middleware.Gate,
	opts ...Option,
) *API {
	a := &API{
		accounts: accounts,
		auth:     auth,
		catalog:  catalog,
		tokens:   tokens,
		gate:     gate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes registers every route on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(a.RateLimit())

	if a.gatherer != nil {
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	admin := a.RequireScopes(domain.ScopeAdmin)
	seller := a.RequireScopes(domain.ScopeSeller)
	anyone := a.RequireScopes()

	v1 := e.Group("/api/v1")
	v1.GET("/health", a.Health)
	v1.GET("/health/ready", a.Ready)

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", a.Login)
	authGroup.POST("/logout", a.Logout)
	authGroup.POST("/token", a.RefreshToken)
	if a.google != nil {
		authGroup.GET("/google", a.GoogleLogin)
		authGroup.GET("/google/callback", a.GoogleCallback)
	}

	me := v1.Group("/user", anyone)
	me.GET("/me", a.GetMe)
	me.PATCH("/me", a.UpdateMe)
	me.DELETE("/me", a.DeleteMe)
	me.PATCH("/me/password", a.ChangePassword)
	me.PATCH("/email", a.ChangeEmail)

	users := v1.Group("/users", admin)
	users.GET("/all/:role", a.ListUsers)
	users.GET("/:username", a.GetUser(""))
	users.PATCH("/:username", a.UpdateUser(""))
	users.DELETE("/:username", a.DeleteUser(""))

	for _, role := range []domain.Role{domain.RoleCustomer, domain.RoleSeller} {
		g := v1.Group("/" + string(role))
		g.POST("", a.Register(role))
		g.GET("", a.ListRole(role), admin)
		g.GET("/:username", a.GetUser(role), admin)
		g.PATCH("/:username", a.UpdateUser(role), admin)
		g.DELETE("/:username", a.DeleteUser(role), admin)
	}

	adminGroup := v1.Group("/admin")
	adminGroup.POST("/setup", a.SetupAdmin)
	adminGroup.GET("/dashboard", a.Dashboard, admin)
	adminGroup.PATCH("/users/:username/role", a.ChangeRole, admin)

	products := e.Group("/api/v2/products")
	products.GET("/categories", a.ListCategories)
	products.POST("/categories", a.CreateCategory, admin)
	products.GET("/:category", a.ListProducts, admin)
	products.POST("/:category", a.CreateProduct, seller)
	products.GET("/:category/:id", a.GetProduct)
	products.PATCH("/:category/:id", a.UpdateProduct, seller)
	products.DELETE("/:category/:id", a.DeleteProduct, admin)
}

// Health reports liveness. It is exempt from rate limiting.
func (a *API) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready runs every readiness check and answers 503 if any fails.
func (a *API) Ready(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(a.checks))}
	code := http.StatusOK
	for _, rc := range a.checks {
		if err := rc.check(c.Request().Context()); err != nil {
			resp.Checks[rc.name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[rc.name] = "ok"
	}
	return c.JSON(code, resp)
}

// pagination reads offset and limit query parameters.
func pagination(c echo.Context) (offset, limit int, err error) {
	limit = 50
	err = echo.QueryParamsBinder(c).
		Int("offset", &offset).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return 0, 0, badRequest("offset and limit must be integers")
	}
	if offset < 0 || limit <= 0 || limit > 100 {
		return 0, 0, badRequest("offset must be >= 0 and limit between 1 and 100")
	}
	return offset, limit, nil
}
