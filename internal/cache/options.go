package cache

import "time"

// EvictReason explains why an entry left the cache without an explicit Delete.
type EvictReason int

const (
	// EvictCapacity means the least recently used entry made room for a new one.
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry's TTL had passed when it was read.
	EvictExpired
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	default:
		return "capacity"
	}
}

// Metrics exposes engine-level observability hooks. All calls happen under
// the engine lock; implementations must be cheap and must not call back into
// the engine.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}

var _ Metrics = NoopMetrics{}

// Clock provides the current time; tests substitute a fake one.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures an Engine. Zero values other than Capacity are safe:
//   - nil Clock   => time.Now
//   - nil Metrics => NoopMetrics
type Options struct {
	// Capacity is the fixed maximum number of resident entries; must be > 0.
	Capacity int

	Clock   Clock
	Metrics Metrics
}
