package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig sizes the per-caller token buckets.  Each audience gets
// its own budget per Window: the classifier posts violations in bursts,
// admins work through review queues, users mostly read their own state.
// Unauthenticated callers share the user budget, keyed by IP.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	UserCapacity   int           `envconfig:"RATE_LIMIT_USER_CAPACITY" default:"60"`
	AdminCapacity  int           `envconfig:"RATE_LIMIT_ADMIN_CAPACITY" default:"300"`
	SystemCapacity int           `envconfig:"RATE_LIMIT_SYSTEM_CAPACITY" default:"1200"`
	Window         time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`
}

// Capacity returns the bucket size for a JWT role claim.
func (rc RateLimitConfig) Capacity(role string) int {
	switch strings.ToUpper(role) {
	case "SYSTEM":
		return rc.SystemCapacity
	case "ADMIN":
		return rc.AdminCapacity
	}
	return rc.UserCapacity
}

// TTL is how long an idle bucket is kept.  A bucket untouched for a full
// window has refilled, so keeping it longer is pointless.
func (rc RateLimitConfig) TTL() time.Duration { return 2 * rc.Window }

// LoadRateLimitConfig decodes the limiter settings and clamps them to sane
// values.  Decoding errors fall back to a disabled limiter.
func LoadRateLimitConfig() RateLimitConfig {
	var rc RateLimitConfig
	if err := envconfig.Process("", &rc); err != nil {
		return RateLimitConfig{}
	}
	for _, c := range []*int{&rc.UserCapacity, &rc.AdminCapacity, &rc.SystemCapacity} {
		if *c < 1 {
			*c = 1
		}
	}
	if rc.Window < time.Second {
		rc.Window = time.Second
	}
	return rc
}
