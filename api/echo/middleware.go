package marketecho

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/metrics"
	"go.pilab.hu/market/middleware"
)

func requestToken(c echo.Context) string {
	var cookie string
	if ck, err := c.Cookie(middleware.AccessTokenCookie); err == nil {
		cookie = ck.Value
	}
	return middleware.ExtractToken(c.Request().Header.Get(echo.HeaderAuthorization), cookie)
}

// RequireScopes admits a request only if its token passes the gate with every
// listed scope. The resolved caller is stored on the request context.
func (a *API) RequireScopes(scopes ...domain.Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p, err := a.gate.Authorize(req.Context(), requestToken(c), scopes...)
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(domain.WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}

// principal returns the caller stored by RequireScopes.
func principal(c echo.Context) *domain.Principal {
	p, _ := domain.PrincipalFromContext(c.Request().Context())
	return p
}

// RateLimit throttles per token (by role policy) or per client IP for
// anonymous callers. Claims are only signature checked here; the gate does the
// full check later.
func (a *API) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a.limiter == nil || rateLimitExempt(c.Request().URL.Path) {
				return next(c)
			}

			var claims *domain.TokenClaims
			if raw := requestToken(c); raw != "" {
				claims, _ = a.tokens.Verify(raw)
			}
			key, policy := middleware.ResolveLimitKey(claims, c.RealIP())
			if !a.limiter.Allow(key, policy) {
				metrics.RateLimitedTotal.WithLabelValues(policy).Inc()
				return echo.NewHTTPError(http.StatusTooManyRequests, middleware.RateLimitExceededMessage)
			}
			return next(c)
		}
	}
}

func rateLimitExempt(path string) bool {
	return path == healthPath || strings.HasPrefix(path, healthPath+"/") ||
		path == metricsPath || strings.HasPrefix(path, metricsPath+"/")
}

// SecurityHeaders adds the common hardening headers to every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}
