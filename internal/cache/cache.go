// Package cache provides an optional short-TTL cache for resolved direct
// URLs, so repeated fallback resolutions of the same link within a few
// minutes don't re-invoke the extraction tool. Direct URLs expire on the
// platform side, so the TTL must stay short.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mediarelay/internal/config"
	"mediarelay/internal/metrics"
)

// ResolvedURLs is consulted before and fed after a direct-URL resolution.
type ResolvedURLs interface {
	Get(ctx context.Context, url string) ([]string, bool)
	Set(ctx context.Context, url string, urls []string)
	Ping(ctx context.Context) error
	Close() error
}

// New returns a Redis-backed cache when cfg.RedisURL is set, otherwise a
// no-op cache.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (ResolvedURLs, error) {
	if cfg.RedisURL == "" {
		return Noop{}, nil
	}
	return newRedisCache(ctx, cfg, m)
}

// Noop satisfies ResolvedURLs when no Redis is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]string, bool) { return nil, false }
func (Noop) Set(context.Context, string, []string)        {}
func (Noop) Ping(context.Context) error                   { return nil }
func (Noop) Close() error                                 { return nil }

const keyPrefix = "mediarelay:resolve:"

// RedisCache stores resolved URL lists as JSON values with a TTL.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

func newRedisCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url error: %w", err)
	}

	opts.MinIdleConns = 2 // Keep a few connections warm
	opts.ConnMaxLifetime = 1 * time.Hour
	opts.ConnMaxIdleTime = 30 * time.Minute

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return &RedisCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
	}, nil
}

// Get returns the cached direct URLs for url, if present. Cache errors are
// reported as misses; resolution falls back to the tool.
func (c *RedisCache) Get(ctx context.Context, url string) ([]string, bool) {
	data, err := c.client.Get(ctx, keyPrefix+url).Bytes()
	if err == redis.Nil {
		c.metrics.CacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		c.metrics.CacheTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		c.metrics.CacheTotal.WithLabelValues("error").Inc()
		return nil, false
	}
	if len(urls) == 0 {
		c.metrics.CacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	c.metrics.CacheTotal.WithLabelValues("hit").Inc()
	return urls, true
}

// Set stores the resolved URLs for url. Failures are ignored; the cache is
// an optimization, not a source of truth.
func (c *RedisCache) Set(ctx context.Context, url string, urls []string) {
	if len(urls) == 0 {
		return
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+url, data, c.ttl).Err(); err != nil {
		c.metrics.CacheTotal.WithLabelValues("error").Inc()
	}
}

// Ping checks Redis connectivity for health reporting.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
