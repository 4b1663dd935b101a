package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moderation-escalation/internal/middleware"
)

// registerMe registers the self-service endpoints under /v1/me.  Every
// route acts on the authenticated user; admins may use them for their own
// account too.
func registerMe(e *echo.Echo, h Handlers, auth []echo.MiddlewareFunc) {
	g := e.Group("/v1/me", with(auth, middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin))...)
	g.GET("/moderation", h.Moderation.Status)
	g.GET("/violations", h.Moderation.Violations)
	g.GET("/suspensions", h.Moderation.Suspensions)
	g.POST("/suspensions/:id/acknowledge", h.Moderation.Acknowledge)
	g.POST("/appeals", h.Appeals.Submit)
	g.GET("/appeals", h.Appeals.ListMine)
}

// registerInternal registers the classifier ingestion endpoint.  Only
// tokens carrying the SYSTEM role may record automatic violations.
func registerInternal(e *echo.Echo, h Handlers, auth []echo.MiddlewareFunc) {
	g := e.Group("/v1/internal", with(auth, middleware.RequireRole(middleware.RoleSystem))...)
	g.POST("/users/:id/violations", h.Moderation.RecordViolation)
}
