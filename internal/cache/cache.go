// Package cache provides time-boxed memoization of expensive aggregate
// results keyed by (location, metric kind). Staleness is purely time-based;
// callers who learn out of band that upstream data changed use Invalidate to
// force recomputation on next access.
package cache

import (
	"sync"
	"time"

	"github.com/doms-project/crmpulse/internal/app/domain"
)

// DefaultTTL applies when a Put is issued with a non-positive ttl.
const DefaultTTL = 15 * time.Minute

// Key identifies one cached aggregate.
type Key struct {
	LocationID string
	Kind       domain.MetricKind
}

// Entry is a cached value with its computation time.
type Entry struct {
	Value      any
	ComputedAt time.Time
}

type record struct {
	value      any
	computedAt time.Time
	ttl        time.Duration
}

// Stats reports hit/miss counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// MetricCache is a process-wide TTL cache. Safe for concurrent use; entries
// for the same key are last-write-wins, which is acceptable because
// concurrent computations derive from the same upstream and converge.
type MetricCache struct {
	mu      sync.RWMutex
	entries map[Key]record
	hits    int64
	misses  int64

	now func() time.Time
}

// New constructs an empty cache.
func New() *MetricCache {
	return &MetricCache{
		entries: make(map[Key]record),
		now:     time.Now,
	}
}

// Get returns the entry for key, treating an expired entry as absent.
func (c *MetricCache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	stored, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(stored.computedAt) > stored.ttl {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return Entry{}, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return Entry{Value: stored.value, ComputedAt: stored.computedAt}, true
}

// Put stores value under key for ttl.
func (c *MetricCache) Put(key Key, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = record{value: value, computedAt: c.now(), ttl: ttl}
}

// Invalidate drops one entry so the next access recomputes without waiting
// for natural expiry.
func (c *MetricCache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateLocation drops every entry for a location, for notifications
// that do not name a metric kind.
func (c *MetricCache) InvalidateLocation(locationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key := range c.entries {
		if key.LocationID == locationID {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Stats returns a snapshot of cache counters.
func (c *MetricCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
