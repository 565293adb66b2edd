package metrics

// CacheStats is a point-in-time view of a cache's counters.
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Elements      uint64 `json:"elements"`
	MemoryUsed    uint64 `json:"memory_used"`
	Invalidations uint64 `json:"invalidations"`
}

func (s CacheStats) Lookups() uint64 { return s.Hits + s.Misses }

func (s CacheStats) HitRate() float64 {
	if s.Lookups() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups())
}

// Add returns the field-wise sum of s and o, used to roll up per-part
// caches into a total.
func (s CacheStats) Add(o CacheStats) CacheStats {
	return CacheStats{
		Hits:          s.Hits + o.Hits,
		Misses:        s.Misses + o.Misses,
		Elements:      s.Elements + o.Elements,
		MemoryUsed:    s.MemoryUsed + o.MemoryUsed,
		Invalidations: s.Invalidations + o.Invalidations,
	}
}

// Sub returns the counters accumulated since prev. Gauges (elements and
// memory) are taken from s as they are. A counter that went backwards was
// reset in between, so its current value is the delta.
func (s CacheStats) Sub(prev CacheStats) CacheStats {
	since := func(now, then uint64) uint64 {
		if now < then {
			return now
		}
		return now - then
	}
	return CacheStats{
		Hits:          since(s.Hits, prev.Hits),
		Misses:        since(s.Misses, prev.Misses),
		Elements:      s.Elements,
		MemoryUsed:    s.MemoryUsed,
		Invalidations: since(s.Invalidations, prev.Invalidations),
	}
}
