// Package cache provides a generic TTL-aware LRU cache built on golang-lru/v2.
// Its consumer is the searcher's query-result cache; the embedder keeps its
// own plain LRU in embedder.Cache.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry wraps a cached value with its expiry, or a zero expiresAt for
// entries that never expire.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a fixed-capacity LRU cache where entries may additionally
// expire after a configured duration.
type TTLCache[K comparable, V any] struct {
	mu  sync.RWMutex
	lru *lru.Cache[K, entry[V]]
	ttl time.Duration // zero means "no expiry"
}

// New creates a TTL-aware LRU cache with the given capacity. A ttl of zero
// disables expiry; entries then live until evicted by capacity pressure.
func New[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	l, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: l, ttl: ttl}, nil
}

// Get returns the cached value for key, or ok=false if absent or expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.lru.Get(key)
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		c.lru.Remove(key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, refreshing its TTL.
func (c *TTLCache[K, V]) Put(key K, value V) {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.lru.Add(key, e)
	c.mu.Unlock()
}

// Remove evicts key, if present.
func (c *TTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
}

// Purge empties the cache.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Len returns the number of entries currently cached (including any not yet
// lazily evicted for having expired).
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Resize changes the cache's capacity in place via golang-lru/v2's Resize.
// Existing entries beyond the new capacity are dropped in LRU order.
func (c *TTLCache[K, V]) Resize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Resize(size)
}
