package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig controls the Redis cache for rendered read models such as
// appeal statistics.  Writers invalidate entries when the rows behind them
// change; TTL only bounds how long an entry survives a missed invalidation.
type CacheConfig struct {
	Enabled bool          `envconfig:"CACHE_ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	Prefix  string        `envconfig:"CACHE_PREFIX" default:"cache"`
}

// LoadCacheConfig reads the cache settings.  Decoding errors disable the
// cache.
func LoadCacheConfig() CacheConfig {
	var cc CacheConfig
	if err := envconfig.Process("", &cc); err != nil {
		return CacheConfig{}
	}
	if cc.TTL < time.Second {
		cc.TTL = time.Second
	}
	return cc
}
