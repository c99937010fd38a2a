package config

import (
	"strings"
	"time"
)

// CacheConfig configures the public marketplace response cache.  Entries
// are namespaced by a generation counter stored at GenerationKey; bumping
// it invalidates every entry at once.
type CacheConfig struct {
	Enabled       bool
	Methods       map[string]bool
	TTL           time.Duration
	KeyStrategy   string
	Prefix        string
	GenerationKey string
	MaxBodyBytes  int
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	prefix := envStr("CACHE_PREFIX", "mkt")
	return CacheConfig{
		Enabled:       envBool("CACHE_ENABLED", true),
		Methods:       parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:           envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:   envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:        prefix,
		GenerationKey: envStr("CACHE_GENERATION_KEY", prefix+":gen"),
		MaxBodyBytes:  envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
