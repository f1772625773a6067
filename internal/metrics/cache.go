// Package metrics exports cache engine and dispatcher events to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/ringcache/internal/cache"
)

// Cache implements cache.Metrics with Prometheus counters and gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Cache struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	entries prometheus.Gauge
}

// NewCache registers the engine metrics with reg (nil => prometheus.DefaultRegisterer)
// under the given namespace, with subsystem "cache".
func NewCache(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Cache {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Cache{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Cache misses, expired entries included",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Entries dropped without an explicit delete, by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Resident entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(c.hits, c.misses, c.evicts, c.entries)
	return c
}

// Hit increments the hit counter.
func (c *Cache) Hit() { c.hits.Inc() }

// Miss increments the miss counter.
func (c *Cache) Miss() { c.misses.Inc() }

// Evict increments the eviction counter for reason.
func (c *Cache) Evict(reason cache.EvictReason) {
	c.evicts.WithLabelValues(reason.String()).Inc()
}

// Size records the number of resident entries.
func (c *Cache) Size(entries int) { c.entries.Set(float64(entries)) }

var _ cache.Metrics = (*Cache)(nil)
