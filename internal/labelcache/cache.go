// Package labelcache remembers encoding classifications in Redis so that
// listing a directory of large, unchanged dictionaries does not re-read them.
// Callers build keys from whatever identifies a file version (path, size,
// modification time); the cache only hashes them.
package labelcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/redis"
)

// Store is the subset of *redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Cache struct {
	store   Store
	prefix  string
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a Cache. m may be nil.
func New(store Store, prefix string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store:   store,
		prefix:  prefix,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "label-cache"),
	}
}

func (c *Cache) Get(ctx context.Context, key string) (charset.Label, bool) {
	k := c.buildKey(key)
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return charset.Unknown, false
	}
	label, ok := decodeLabel(data)
	if !ok {
		c.logger.Warn("ignoring malformed cache entry", "key", k, "value", data)
		c.miss()
		return charset.Unknown, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.LabelCacheTotal.WithLabelValues("hit").Inc()
	}
	return label, true
}

func (c *Cache) Set(ctx context.Context, key string, label charset.Label) {
	k := c.buildKey(key)
	if err := c.store.Set(ctx, k, label.String(), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached label for key, or runs compute once for
// all concurrent callers asking for the same key and caches its result.
// Errors from compute are returned and never cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (charset.Label, error)) (charset.Label, error) {
	if label, ok := c.Get(ctx, key); ok {
		return label, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		label, err := compute()
		if err != nil {
			return charset.Unknown, err
		}
		c.Set(ctx, key, label)
		return label, nil
	})
	if err != nil {
		return charset.Unknown, err
	}
	return val.(charset.Label), nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.LabelCacheTotal.WithLabelValues("miss").Inc()
	}
}

func (c *Cache) buildKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}

func decodeLabel(s string) (charset.Label, bool) {
	switch l := charset.Label(s); l {
	case charset.UTF8, charset.Windows1251, charset.Unknown:
		return l, true
	}
	return charset.Unknown, false
}
