package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/dealer-syndication/internal/config"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/metrics"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size < cw.limit {
		remain := cw.limit - cw.size
		switch {
		case cw.limit <= 0, int64(len(b)) <= remain:
			cw.buf.Write(b)
		default:
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ResponseCache caches anonymous marketplace reads in Redis.  Entries are
// namespaced by a generation counter; Invalidate bumps the counter, which
// orphans every entry at once and leaves them to expire by TTL.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewResponseCache returns a cache.  A nil client or a disabled config
// yields a cache whose middleware is a pass-through and whose Invalidate
// is a no-op.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

func (rc *ResponseCache) enabled() bool { return rc.cfg.Enabled && rc.rdb != nil }

// Invalidate drops every cached view.  It satisfies service.ViewInvalidator.
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	if !rc.enabled() {
		return nil
	}
	return rc.rdb.Incr(ctx, rc.cfg.GenerationKey).Err()
}

func (rc *ResponseCache) generation(ctx context.Context) (int64, error) {
	n, err := rc.rdb.Get(ctx, rc.cfg.GenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// key builds a stable cache key honoring prefix, strategy and generation.
func (rc *ResponseCache) key(c echo.Context, gen int64) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", c.Path()}
	case "method_route":
		parts = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default: // route_query
		parts = []string{"route", r.URL.Path, "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%d:%x", rc.cfg.Prefix, gen, sum[:])
}

// Middleware serves cached responses for anonymous requests and stores
// fresh 200 responses.  Authenticated requests bypass the cache because
// their owner and network pools differ per viewer.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !rc.cfg.Methods[strings.ToUpper(req.Method)] || req.Header.Get(echo.HeaderAuthorization) != "" {
				metrics.ResponseCacheResults.WithLabelValues("bypass").Inc()
				return next(c)
			}

			ctx := req.Context()
			gen, err := rc.generation(ctx)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("response cache unavailable")
				metrics.ResponseCacheResults.WithLabelValues("bypass").Inc()
				return next(c)
			}
			key := rc.key(c, gen)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					metrics.ResponseCacheResults.WithLabelValues("hit").Inc()
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			metrics.ResponseCacheResults.WithLabelValues("miss").Inc()
			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("response cache store failed")
			}
			return nil
		}
	}
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
