package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Hits        uint64 // Get calls that returned a live entry
	Misses      uint64 // Get calls for absent or expired keys
	Sets        uint64 // Set calls, inserts and updates
	Deletes     uint64 // Delete calls that removed an entry
	Evictions   uint64 // entries dropped to stay within capacity
	Expirations uint64 // entries dropped lazily because their TTL passed
	Entries     int    // resident entries
	Capacity    int    // configured maximum
}

// Engine is a bounded, recency-ordered key/value store with per-entry expiry.
// It holds at most Capacity entries; inserting past that evicts the least
// recently used one. Both Set and Get count as use.
//
// Expired entries are removed lazily, on the Get that discovers them.
// Thread-safe: every method serializes on a single mutex.
type Engine struct {
	mu       sync.Mutex
	index    map[string]int32
	list     recencyList
	capacity int
	clock    Clock
	metrics  Metrics
	stats    Stats
}

// New creates an engine with the given options.
//
// Example:
//
//	e, err := cache.New(cache.Options{Capacity: 3})
//	e.Set("a", "1", 0)
//	v, ok := e.Get("a")
func New(opts Options) (*Engine, error) {
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, opts.Capacity)
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	return &Engine{
		index:    make(map[string]int32, opts.Capacity+1),
		list:     newRecencyList(opts.Capacity),
		capacity: opts.Capacity,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}, nil
}

// Set stores value under key and makes it the most recently used entry.
// A ttl of zero or less means the entry never expires; otherwise it expires
// ttl after now. Updating an existing key replaces its value and expiry
// without changing the entry count.
func (e *Engine) Set(key, value string, ttl time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	expiry := e.deadline(ttl)
	e.stats.Sets++

	if i, ok := e.index[key]; ok {
		ent := e.list.at(i)
		ent.value = value
		ent.expiry = expiry
		e.list.moveToFront(i)
		return
	}

	e.index[key] = e.list.pushFront(entry{key: key, value: value, expiry: expiry})
	if e.list.len > e.capacity {
		e.evictLocked(e.list.back(), EvictCapacity)
	}
	e.metrics.Size(e.list.len)
}

// SetIfAbsent stores value under key only when no live entry exists. It
// returns the value now resident and whether it was inserted. A live entry
// is left untouched apart from being promoted; an expired one is replaced.
func (e *Engine) SetIfAbsent(key, value string, ttl time.Duration) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i, ok := e.index[key]; ok {
		ent := e.list.at(i)
		if ent.expiry.IsZero() || e.clock.Now().Before(ent.expiry) {
			e.list.moveToFront(i)
			return ent.value, false
		}
		e.evictLocked(i, EvictExpired)
	}

	e.stats.Sets++
	e.index[key] = e.list.pushFront(entry{key: key, value: value, expiry: e.deadline(ttl)})
	if e.list.len > e.capacity {
		e.evictLocked(e.list.back(), EvictCapacity)
	}
	e.metrics.Size(e.list.len)
	return value, true
}

// Get returns the value for key and promotes it to most recently used.
// An entry whose expiry is at or before now is removed and reported as a miss.
func (e *Engine) Get(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[key]
	if !ok {
		e.missLocked()
		return "", false
	}

	ent := e.list.at(i)
	if !ent.expiry.IsZero() && !e.clock.Now().Before(ent.expiry) {
		e.evictLocked(i, EvictExpired)
		e.metrics.Size(e.list.len)
		e.missLocked()
		return "", false
	}

	value := ent.value
	e.list.moveToFront(i)
	e.stats.Hits++
	e.metrics.Hit()
	return value, true
}

// Delete removes key regardless of its expiry state. It reports whether an
// entry was removed.
func (e *Engine) Delete(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[key]
	if !ok {
		return false
	}
	e.list.remove(i)
	delete(e.index, key)
	e.stats.Deletes++
	e.metrics.Size(e.list.len)
	return true
}

// Len returns the number of resident entries, expired ones included until
// they are read.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list.len
}

// Capacity returns the configured maximum number of entries.
func (e *Engine) Capacity() int { return e.capacity }

// Keys returns the resident keys from most to least recently used.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list.keys()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Entries = e.list.len
	s.Capacity = e.capacity
	return s
}

func (e *Engine) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return e.clock.Now().Add(ttl)
}

func (e *Engine) missLocked() {
	e.stats.Misses++
	e.metrics.Miss()
}

func (e *Engine) evictLocked(i int32, reason EvictReason) {
	ent := e.list.remove(i)
	delete(e.index, ent.key)
	if reason == EvictExpired {
		e.stats.Expirations++
	} else {
		e.stats.Evictions++
	}
	e.metrics.Evict(reason)
}
