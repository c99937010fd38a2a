package config

import "time"

// RateLimitConfig configures a Redis token bucket.  The API and the
// ingestion channel each get one.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.
func LoadRateLimitConfig() RateLimitConfig {
	return loadRateLimit("RATE_LIMIT", 60, "rl", "ip_user_route")
}

// LoadIngestRateLimitConfig reads INGEST_RATE_LIMIT_* variables.  Buckets
// are keyed per route because the ingestion credential is shared.
func LoadIngestRateLimitConfig() RateLimitConfig {
	return loadRateLimit("INGEST_RATE_LIMIT", 600, "rl:ingest", "route")
}

func loadRateLimit(prefix string, capacity int, keyPrefix, strategy string) RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool(prefix+"_ENABLED", true),
		Capacity:       envInt(prefix+"_CAPACITY", capacity),
		RefillTokens:   max(envInt(prefix+"_REFILL_TOKENS", 1), 1),
		RefillInterval: envDur(prefix+"_REFILL_INTERVAL", time.Second),
		TTL:            envDur(prefix+"_TTL", 10*time.Minute),
		KeyStrategy:    envStr(prefix+"_KEY_STRATEGY", strategy),
		Prefix:         envStr(prefix+"_PREFIX", keyPrefix),
		Debug:          envBool(prefix+"_DEBUG", false),
	}
	if burst := envInt(prefix+"_BURST", 0); burst > 0 {
		cfg.Capacity = burst
	}
	cfg.Capacity = max(cfg.Capacity, 1)
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// A bucket must outlive the time it takes to refill.
	cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
	return cfg
}
