// Package cache memoizes classifier outputs in Redis. Concurrent requests
// for the same key collapse into one computation through singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/redis"
)

const keyPrefix = "mind:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache stores JSON-encoded values of type T under a namespace.
type Cache[T any] struct {
	store     Store
	namespace string
	ttl       time.Duration
	metrics   *metrics.Metrics
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New returns a cache writing keys under "mind:<namespace>:". m may be nil.
func New[T any](store Store, namespace string, ttl time.Duration, m *metrics.Metrics) *Cache[T] {
	return &Cache[T]{
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		metrics:   m,
		logger:    slog.Default().With("component", "prediction-cache", "namespace", namespace),
	}
}

// Key derives a cache key from the ordered parts. Parts are joined with a
// unit separator so ("a b", "c") and ("a", "b c") never collide.
func (c *Cache[T]) Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%s%s:%x", keyPrefix, c.namespace, hash[:16])
}

// Get looks a key up. Store and decode failures count as misses.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return zero, false
	}
	var value T
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return zero, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return value, true
}

// Set stores value with the configured TTL. Failures are logged only.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for key, or runs compute once
// across concurrent callers and caches its result. The boolean reports a
// cache hit. compute runs on a context detached from any one caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	if value, ok := c.Get(ctx, key); ok {
		return value, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		value, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, value)
		return value, nil
	})
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, false, r.Err
		}
		return r.Val.(T), false, nil
	}
}

// Invalidate deletes every key in this cache's namespace.
func (c *Cache[T]) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+c.namespace+":*")
	if err != nil {
		return fmt.Errorf("invalidating %s cache: %w", c.namespace, err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since creation.
func (c *Cache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache[T]) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache[T]) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
