package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	marketecho "go.pilab.hu/market/api/echo"
	"go.pilab.hu/market/config"
	"go.pilab.hu/market/log"
)

// NewHTTPServer creates the echo router with the ambient middleware and the
// API routes, wrapped in an http.Server with sane timeouts.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *marketecho.API) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.OtelServiceName))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":     v.Method,
				"path":       v.URIPath,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"ip":         v.RemoteIP,
				"user_agent": v.UserAgent,
			}
			ctx := c.Request().Context()
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				appLogger.Error(ctx, "HTTP Request", v.Error, fields)
			} else {
				appLogger.Info(ctx, "HTTP Request", fields)
			}
			return nil
		},
	}))
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     origins,
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}
	e.Use(marketecho.SecurityHeaders())

	api.RegisterRoutes(e)

	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
