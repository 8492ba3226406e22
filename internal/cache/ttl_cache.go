// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"
)

// now is replaceable in tests.
var now = time.Now

type entry[V any] struct {
	value    V
	lastUsed time.Time
}

// TTLCache is a thread-safe cache whose entries expire after sitting idle
// for longer than the TTL. Reading an entry with Get refreshes it.
// A TTL of zero or less disables expiry.
type TTLCache[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]*entry[V]
	ttl  time.Duration
}

// New creates an empty TTLCache with the given idle TTL.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]*entry[V]),
		ttl:  ttl,
	}
}

// TTL returns the idle timeout.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a live value and refreshes its idle timer.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || c.expiredLocked(e) {
		var zero V
		return zero, false
	}
	e.lastUsed = now()
	return e.value, true
}

// Set stores a value and starts its idle timer.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &entry[V]{value: value, lastUsed: now()}
}

// Delete removes key and reports whether it was present.
func (c *TTLCache[K, V]) Delete(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(c.data, key)
	return e.value, true
}

// GetAll returns a copy of all live values. Timers are not refreshed.
func (c *TTLCache[K, V]) GetAll() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[K]V, len(c.data))
	for k, e := range c.data {
		if !c.expiredLocked(e) {
			result[k] = e.value
		}
	}
	return result
}

// Sweep removes expired entries and returns them so callers can release
// resources they hold.
func (c *TTLCache[K, V]) Sweep() map[K]V {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired map[K]V
	for k, e := range c.data {
		if c.expiredLocked(e) {
			if expired == nil {
				expired = make(map[K]V)
			}
			expired[k] = e.value
			delete(c.data, k)
		}
	}
	return expired
}

// expiredLocked MUST be called with the lock held.
func (c *TTLCache[K, V]) expiredLocked(e *entry[V]) bool {
	return c.ttl > 0 && now().Sub(e.lastUsed) >= c.ttl
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[K]*entry[V])
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
