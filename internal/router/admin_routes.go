package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moderation-escalation/internal/middleware"
)

// registerAdmin registers admin endpoints under /v1/admin.  All routes
// require a valid JWT and the ADMIN role.  Admins apply manual moderation
// actions, lift suspensions, review appeals, inspect a user's history and
// announce maintenance windows.
func registerAdmin(e *echo.Echo, h Handlers, auth []echo.MiddlewareFunc, statsCache echo.MiddlewareFunc) {
	g := e.Group("/v1/admin", with(auth, middleware.RequireRole(middleware.RoleAdmin))...)

	// Manual moderation and lifts.
	g.POST("/users/:id/moderation", h.Moderation.Moderate)
	g.POST("/users/:id/lift", h.Moderation.LiftUser)
	g.POST("/suspensions/:id/lift", h.Moderation.LiftSuspension)

	// Per-user history.
	g.GET("/users/:id/moderation", h.Moderation.Status)
	g.GET("/users/:id/violations", h.Moderation.Violations)
	g.GET("/users/:id/suspensions", h.Moderation.Suspensions)
	g.GET("/users/:id/audit", h.Moderation.AuditLog)

	// Appeals.  Stats are served through the response cache.
	g.GET("/appeals", h.Appeals.List)
	if statsCache != nil {
		g.GET("/appeals/stats", h.Appeals.Stats, statsCache)
	} else {
		g.GET("/appeals/stats", h.Appeals.Stats)
	}
	g.POST("/appeals/:id/review", h.Appeals.Review)

	g.POST("/maintenance/notify", h.Maintenance.Notify)
}
