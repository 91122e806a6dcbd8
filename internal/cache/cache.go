// Package cache is a small in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values that expire after a fixed TTL
type Cache[K comparable, V any] struct {
	items map[K]entry[V]
	ttl   time.Duration
	mutex sync.RWMutex
	now   func() time.Time
}

// New creates a cache whose entries live for ttl
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves an unexpired value
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mutex.RLock()
	item, exists := c.items[key]
	c.mutex.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if c.now().After(item.expiresAt) {
		c.mutex.Lock()
		// re-check, another writer may have refreshed it
		if cur, ok := c.items[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return zero, false
	}

	return item.value, true
}

// Set stores a value with the cache TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache[K, V]) Delete(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries, expired or not
func (c *Cache[K, V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Clear removes all items from the cache
func (c *Cache[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[K]entry[V])
}
