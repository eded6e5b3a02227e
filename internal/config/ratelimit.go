package config

import "time"

// RateLimitConfig configures the Redis token bucket on the write routes
// (hold, confirm, release).  Tokens refill continuously at PerSecond up to
// Burst.
type RateLimitConfig struct {
	Enabled     bool
	Burst       int
	PerSecond   float64
	KeyStrategy string // client, client_route or ip
	Prefix      string
	Debug       bool
}

func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Burst:       envInt("RATE_LIMIT_BURST", 10),
		PerSecond:   envFloat("RATE_LIMIT_PER_SEC", 0.5),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "client"),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	}
	return def.normalize()
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.PerSecond <= 0 {
		c.PerSecond = 0.5
	}
	return c
}

// IdleTTL is how long an untouched bucket is kept: the time to refill from
// empty plus a second.
func (c RateLimitConfig) IdleTTL() time.Duration {
	return time.Duration(float64(c.Burst)/c.PerSecond*float64(time.Second)) + time.Second
}
