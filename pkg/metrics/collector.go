package metrics

import "github.com/prometheus/client_golang/prometheus"

// StatsSource is anything that can report CacheStats, typically a cache.
type StatsSource interface {
	Stats() CacheStats
}

// CacheCollector exports a StatsSource as prometheus metrics.
type CacheCollector struct {
	src           StatsSource
	hits          *prometheus.Desc
	misses        *prometheus.Desc
	elements      *prometheus.Desc
	memoryUsed    *prometheus.Desc
	invalidations *prometheus.Desc
}

func NewCacheCollector(namespace, cache string, src StatsSource) *CacheCollector {
	labels := prometheus.Labels{"cache": cache}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, labels)
	}
	return &CacheCollector{
		src:           src,
		hits:          desc("hits_total", "Number of cache lookups that found an entry"),
		misses:        desc("misses_total", "Number of cache lookups that found nothing"),
		elements:      desc("elements", "Number of entries in the cache"),
		memoryUsed:    desc("memory_used_bytes", "Compressed bytes held by the cache"),
		invalidations: desc("invalidations_total", "Number of entries dropped from the cache"),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.elements
	ch <- c.memoryUsed
	ch <- c.invalidations
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.elements, prometheus.GaugeValue, float64(s.Elements))
	ch <- prometheus.MustNewConstMetric(c.memoryUsed, prometheus.GaugeValue, float64(s.MemoryUsed))
	ch <- prometheus.MustNewConstMetric(c.invalidations, prometheus.CounterValue, float64(s.Invalidations))
}
