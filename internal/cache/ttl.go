package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/huntstack/internal/metrics"
)

// Permanent is the TTL for entries that never expire.
const Permanent time.Duration = 0

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

// TTL is an in-memory key/value cache with per-entry expiry. Expired entries
// are evicted lazily when they are read. Safe for concurrent use.
type TTL[V any] struct {
	name  string
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]entry[V]
}

// New creates a cache. The name labels cache lookup metrics. A nil clock uses
// real time.
func New[V any](name string, clock clockwork.Clock) *TTL[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTL[V]{
		name:    name,
		clock:   clock,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		metrics.CacheLookups.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Put stores value under key. A ttl of Permanent never expires.
func (c *TTL[V]) Put(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired entries not yet
// evicted.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
