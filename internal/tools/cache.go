package tools

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vinayprograms/gatedagent/internal/metrics"
)

// Cache memoizes a pure function of a string input. It is bounded, safe for
// concurrent use, and collapses concurrent misses for the same key into one
// call. Failed calls are not cached.
type Cache[V any] struct {
	name  string
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

// NewCache creates a cache holding at most size entries. The name labels
// hit/miss metrics.
func NewCache[V any](name string, size int) (*Cache[V], error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache %s: size must be positive, got %d", name, size)
	}
	l, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	return &Cache[V]{name: name, lru: l}, nil
}

// Do returns the cached value for key, or calls fn and caches its result.
// The boolean reports whether the value came from the cache.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
		return v, true, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := fn()
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	v, _ := res.(V)
	return v, false, err
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
