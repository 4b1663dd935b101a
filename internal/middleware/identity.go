package middleware

// identity.go holds the context keys populated by JWTAuth and the helpers
// that read them back.  Handlers and the rate limiter share these so the
// claim decoding lives in one place.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Roles carried in the JWT "role" claim.
const (
	RoleUser   = "USER"
	RoleAdmin  = "ADMIN"
	RoleSystem = "SYSTEM" // the content classifier
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated subject.  JSON numbers decode to
// float64 in jwt.MapClaims, so every numeric form is accepted.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get(ctxUserID).(type) {
	case uint64:
		return t, true
	case int:
		return uint64(t), t >= 0
	case int64:
		return uint64(t), t >= 0
	case float64:
		return uint64(t), t >= 0
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// callerKey names the rate-limit bucket for the request: the audience
// derived from the role claim and a subject within it.  Authenticated
// callers are keyed by user id, anything else by client IP.
func callerKey(c echo.Context) (audience, subject string) {
	switch Role(c) {
	case RoleSystem:
		audience = "system"
	case RoleAdmin:
		audience = "admin"
	case RoleUser:
		audience = "user"
	default:
		audience = "anon"
	}
	if id, ok := UserID(c); ok && audience != "anon" {
		return audience, strconv.FormatUint(id, 10)
	}
	return "anon", c.RealIP()
}
