package utils // package utils provides helper functions for token creation

import (
	"fmt"
	"strings"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are encoded in the Authorization
// header when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// knownRoles are the values the API accepts in the "role" claim.
var knownRoles = map[string]bool{"USER": true, "ADMIN": true, "SYSTEM": true}

// NormalizeRole upper-cases role and reports an error when it is not one
// of USER, ADMIN or SYSTEM.
func NormalizeRole(role string) (string, error) {
	r := strings.ToUpper(strings.TrimSpace(role))
	if !knownRoles[r] {
		return "", fmt.Errorf("unknown role %q (want USER, ADMIN or SYSTEM)", role)
	}
	return r, nil
}

// NewAccessToken builds and signs an HS256 JWT for a user.  It takes the
// signing secret, the user ID, the user's role, and a TTL in minutes.  The
// JWT includes the standard claims subject (sub), role, expiration (exp)
// and issued at (iat).  Tokens are issued by the upstream auth service in
// production; this is used by the operator CLI and tests.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
	if ttlMin <= 0 {
		return AccessToken{}, fmt.Errorf("ttl must be positive, got %d", ttlMin)
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
