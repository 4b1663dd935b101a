package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/config"
)

// ResponseCache stores rendered JSON read models in Redis under a fixed
// name.  The services that change the underlying rows call Invalidate, so
// entries are dropped on write instead of going stale for a full TTL.
// A nil client turns both sides into no-ops.
type ResponseCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResponseCache returns a cache backed by rdb, or a disabled one when
// caching is switched off.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if !cfg.Enabled {
		rdb = nil
	}
	return &ResponseCache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (rc *ResponseCache) key(name string) string { return rc.prefix + ":" + name }

// Serve caches successful GET responses of the wrapped handler under name.
// Every caller shares the entry, so it must only wrap routes whose output
// does not depend on who asks.
func (rc *ResponseCache) Serve(name string) echo.MiddlewareFunc {
	if rc == nil || rc.rdb == nil {
		return passthrough
	}
	key := rc.key(name)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			if body, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.JSONBlob(http.StatusOK, body)
			} else if err != redis.Nil {
				log.Warn().Err(err).Str("component", "cache").Str("key", key).Msg("cache read failed")
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK {
				return nil
			}
			if err := rc.rdb.Set(context.WithoutCancel(ctx), key, rec.buf.Bytes(), rc.ttl).Err(); err != nil {
				log.Warn().Err(err).Str("component", "cache").Str("key", key).Msg("cache write failed")
			}
			return nil
		}
	}
}

// Invalidate drops the named entries.  Failures are logged; the TTL bounds
// how long a missed invalidation can serve stale data.
func (rc *ResponseCache) Invalidate(ctx context.Context, names ...string) {
	if rc == nil || rc.rdb == nil || len(names) == 0 {
		return
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = rc.key(n)
	}
	if err := rc.rdb.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		log.Warn().Err(err).Str("component", "cache").Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// bodyRecorder copies the response body while forwarding it.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
