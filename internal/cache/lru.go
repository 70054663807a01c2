// Package cache holds the process-wide memo tables used by the reply pipeline.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// LRU is a concurrency-safe, optionally bounded key/value cache.
// A maxEntries of zero keeps every entry for the life of the process.
type LRU[V any] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewLRU[V any](maxEntries int) *LRU[V] {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &LRU[V]{cache: lru.New(maxEntries)}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	v, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Add inserts or overwrites key.
func (c *LRU[V]) Add(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, value)
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
