package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/config"
)

// takeScript refills the bucket continuously at capacity/window and takes
// one token.  It returns {allowed, tokens left, wait in ms}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now_ms
end

local per_ms = capacity / window_ms
tokens = math.min(capacity, tokens + math.max(0, now_ms - ts) * per_ms)

local allowed = 0
local wait = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 't', tostring(tokens), 'ts', tostring(now_ms))
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, math.floor(tokens), wait}
`)

// NewTokenBucket returns a Redis-backed limiter that must run after
// JWTAuth.  Callers are bucketed by audience (see callerKey), so a busy
// classifier cannot drain the budget of admins or users.  Redis failures
// let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	ttl := int64(cfg.TTL() / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			audience, subject := callerKey(c)
			key := cfg.Prefix + ":" + audience + ":" + subject
			capacity := cfg.Capacity(Role(c))

			res, err := takeScript.Run(c.Request().Context(), rdb, []string{key},
				capacity, cfg.Window.Milliseconds(), time.Now().UnixMilli(), ttl).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn().Err(err).Str("component", "ratelimit").Str("key", key).Msg("limiter unavailable; allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}

			secs := (res[2] + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			if cfg.Debug {
				log.Debug().Str("component", "ratelimit").Str("key", key).Int64("retry_ms", res[2]).Msg("request blocked")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate_limited",
				"message":     "too many requests for this " + audience + " caller",
				"retry_after": secs,
			})
		}
	}
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
