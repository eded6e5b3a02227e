package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/library-seat-lease/internal/config"
)

// tokenBucketScript refills the bucket continuously at per_ms tokens per
// millisecond, capped at burst, then takes one token when a whole one is
// available.  Returns {allowed, whole tokens left, wait_ms}.
var tokenBucketScript = redis.NewScript(`
local burst = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[1])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now_ms
if now_ms > ts then
  tokens = math.min(burst, tokens + (now_ms - ts) * per_ms)
  ts = now_ms
end

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[4]))
return { allowed, math.floor(tokens), wait_ms }
`)

type bucketDecision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	now func() time.Time
}

func (b tokenBucket) take(ctx context.Context, key string) (bucketDecision, error) {
	vals, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
		b.now().UnixMilli(),
		b.cfg.Burst,
		b.cfg.PerSecond/1000,
		b.cfg.IdleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return bucketDecision{}, err
	}
	if len(vals) != 3 {
		return bucketDecision{}, fmt.Errorf("unexpected script result %v", vals)
	}
	return bucketDecision{
		allowed:   vals[0] == 1,
		remaining: vals[1],
		retry:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits lease writes per client with a token bucket kept
// in Redis.  The limiter fails open: without Redis, or when the script
// errors, requests pass.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	bucket := tokenBucket{cfg: cfg, rdb: rdb, now: time.Now}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			d, err := bucket.take(c.Request().Context(), key)
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !d.allowed {
				secs := int(math.Ceil(d.retry.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too many lease requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// rateKey buckets identified callers by user id and anonymous ones by
// address, so students sharing a campus NAT do not starve each other once
// signed in.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	client := "ip:" + ip
	if uid := UserID(c); uid != "" {
		client = "user:" + uid
	}

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		return cfg.Prefix + ":ip:" + ip
	case "client_route":
		return cfg.Prefix + ":" + client + ":" + c.Request().Method + " " + c.Path()
	default:
		return cfg.Prefix + ":" + client
	}
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
