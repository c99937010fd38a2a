package config

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/dealer-syndication/internal/logging"
)

// NewRedisClient connects to the Redis server named by REDIS_HOST and
// REDIS_PORT (or REDIS_ADDR).  REDIS_PASSWORD, REDIS_DB and REDIS_TLS are
// optional.  It returns nil when the server does not answer a ping, in
// which case rate limiting and the response cache pass requests through.
func NewRedisClient() *redis.Client {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = net.JoinHostPort(host, port)
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if envBool("REDIS_TLS", false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Warn().Err(err).Str("addr", addr).Msg("redis unavailable; rate limiting and caching disabled")
		_ = client.Close()
		return nil
	}
	return client
}
