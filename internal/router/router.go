package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/moderation-escalation/internal/handler"
	"github.com/iliyamo/moderation-escalation/internal/middleware"
)

// Handlers bundles every handler the API exposes.
type Handlers struct {
	Moderation  *handler.ModerationHandler
	Appeals     *handler.AppealHandler
	Maintenance *handler.MaintenanceHandler
}

// Options carries the cross-cutting middleware built from configuration.
// RateLimit wraps every authenticated route; StatsCache wraps the appeal
// statistics endpoint.  Nil values are skipped.
type Options struct {
	JWTSecret  string
	RateLimit  echo.MiddlewareFunc
	StatsCache echo.MiddlewareFunc
}

// RegisterRoutes registers routes that do not require authentication: the
// health check used by load balancers and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAPI registers the authenticated /v1 API.
func RegisterAPI(e *echo.Echo, h Handlers, opts Options) {
	auth := []echo.MiddlewareFunc{middleware.JWTAuth(opts.JWTSecret)}
	if opts.RateLimit != nil {
		// runs after JWTAuth so the limiter can key on the user
		auth = append(auth, opts.RateLimit)
	}
	registerMe(e, h, auth)
	registerInternal(e, h, auth)
	registerAdmin(e, h, auth, opts.StatsCache)
}

func with(base []echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
