package cache

import "time"

// TTLCache is an LRU cache whose entries also expire after a fixed duration.
// An expired entry is removed on the read that observes the expiry; it is
// never returned to the caller.
type TTLCache[K comparable, V any] struct {
	lru *LRU[K, ttlEntry[V]]
	ttl time.Duration
	now func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	deadline time.Time
}

// NewTTLCache creates a size- and age-bounded cache. A non-positive ttl
// disables expiry entirely and the cache behaves like a plain LRU.
func NewTTLCache[K comparable, V any](capacity int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		lru: NewLRU[K, ttlEntry[V]](capacity),
		ttl: ttl,
		now: time.Now,
	}
}

// Get retrieves a live value by key, marking it as recently used.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	ent, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && c.now().After(ent.deadline) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return ent.value, true
}

// Set stores a value with a fresh deadline.
func (c *TTLCache[K, V]) Set(key K, value V) {
	ent := ttlEntry[V]{value: value}
	if c.ttl > 0 {
		ent.deadline = c.now().Add(c.ttl)
	}
	c.lru.Set(key, ent)
}

// Remove deletes a key from the cache.
func (c *TTLCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len returns the number of items currently held, including any whose
// expiry has not yet been observed by a read.
func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}

// TrimTo discards least recently used entries until at most max remain.
func (c *TTLCache[K, V]) TrimTo(max int) {
	c.lru.TrimTo(max)
}

// Clear removes all items from the cache.
func (c *TTLCache[K, V]) Clear() {
	c.lru.Clear()
}
