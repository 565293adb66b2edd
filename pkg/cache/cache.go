// Package cache keeps compressed document blobs in memory.
//
// The cache has no eviction policy. Entries leave only through Invalidate
// or when a newer write replaces them.
package cache

import (
	"sync"

	"github.com/ssargent/freyjadoc/pkg/blob"
	"github.com/ssargent/freyjadoc/pkg/metrics"
)

// Cache maps keys to blob values. It is safe for concurrent use. Values are
// copied on the way in and on the way out, so callers never share a buffer
// with the cache.
type Cache struct {
	mu      sync.RWMutex
	name    string
	entries map[string]blob.Value

	// current counts since the last Snapshot; totals holds earlier periods.
	snapMu     sync.Mutex
	current    counters
	totals     counters
	memoryUsed *metrics.CountMetric
}

type counters struct {
	hits          *metrics.CountMetric
	misses        *metrics.CountMetric
	invalidations *metrics.CountMetric
}

func newCounters(prefix string) counters {
	return counters{
		hits:          metrics.NewCountMetric(prefix + ".hits"),
		misses:        metrics.NewCountMetric(prefix + ".misses"),
		invalidations: metrics.NewCountMetric(prefix + ".invalidations"),
	}
}

func (cs counters) stats() metrics.CacheStats {
	return metrics.CacheStats{
		Hits:          cs.hits.Value(),
		Misses:        cs.misses.Value(),
		Invalidations: cs.invalidations.Value(),
	}
}

func New(name string) *Cache {
	return &Cache{
		name:       name,
		entries:    make(map[string]blob.Value),
		current:    newCounters(name),
		totals:     newCounters(name + ".total"),
		memoryUsed: metrics.NewCountMetric(name + ".memory_used"),
	}
}

func (c *Cache) Name() string { return c.name }

// Get returns a copy of the value stored under key.
func (c *Cache) Get(key string) (blob.Value, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	if ok {
		v = v.Clone()
	}
	c.mu.RUnlock()

	if ok {
		c.current.hits.Inc(1)
	} else {
		c.current.misses.Inc(1)
	}
	return v, ok
}

// Put stores a copy of v under key. It returns false and leaves the cache
// unchanged when the cached value came from a newer write than v.
func (c *Cache) Put(key string, v blob.Value) bool {
	v = v.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		if old.SyncToken() > v.SyncToken() {
			return false
		}
		c.memoryUsed.Dec(uint64(old.Size()))
	}
	c.entries[key] = v
	c.memoryUsed.Inc(uint64(v.Size()))
	return true
}

// Invalidate drops key from the cache. It reports whether an entry was
// removed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.memoryUsed.Dec(uint64(old.Size()))
	c.current.invalidations.Inc(1)
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) gauges() metrics.CacheStats {
	return metrics.CacheStats{Elements: uint64(c.Len()), MemoryUsed: c.memoryUsed.Value()}
}

// Stats reports lifetime counters. It implements metrics.StatsSource.
func (c *Cache) Stats() metrics.CacheStats {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.totals.stats().Add(c.current.stats()).Add(c.gauges())
}

// Snapshot returns the counters accumulated since the previous Snapshot and
// starts a new period. Lookups that race with it land in one period or the
// other, never both.
func (c *Cache) Snapshot() metrics.CacheStats {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	period := c.gauges()
	period.Hits = roll(c.current.hits, c.totals.hits)
	period.Misses = roll(c.current.misses, c.totals.misses)
	period.Invalidations = roll(c.current.invalidations, c.totals.invalidations)
	return period
}

// roll moves the value of live into total and returns the amount moved.
func roll(live, total *metrics.CountMetric) uint64 {
	taken := metrics.NewCountMetric(live.Path())
	live.AddToSnapshot(taken)
	taken.AddToSnapshot(total)
	live.Sub(taken)
	return taken.Value()
}
