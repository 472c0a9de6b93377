// Package cache provides a bounded, expiring, concurrency-safe key/value cache.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU evicts the least recently used entry once full and drops entries older than the TTL.
type LRU[K comparable, V any] struct {
	inner *expirable.LRU[K, V]
}

// New returns an LRU holding at most size entries for ttl. A zero ttl keeps
// entries until they are evicted by size.
func New[K comparable, V any](size int, ttl time.Duration) *LRU[K, V] {
	if size <= 0 {
		size = 1
	}
	return &LRU[K, V]{inner: expirable.NewLRU[K, V](size, nil, ttl)}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

func (c *LRU[K, V]) Put(key K, value V) {
	c.inner.Add(key, value)
}

// Contains reports presence without updating recency.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

func (c *LRU[K, V]) Invalidate(key K) {
	c.inner.Remove(key)
}

func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

func (c *LRU[K, V]) Purge() {
	c.inner.Purge()
}
