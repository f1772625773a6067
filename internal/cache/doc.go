// Package cache implements the per-node cache engine: a fixed-capacity,
// least-recently-used key/value store with optional per-entry expiry.
//
// # Layout
//
// Entries live in a slab and are chained into a recency list by slot index.
// A map from key to slot index gives O(1) lookup; the list gives O(1)
// move-to-front and O(1) eviction from the tail.
//
//	index: map[key]slot
//	         │
//	         ▼
//	slab:  [ c ]⇄[ a ]⇄[ b ]      head = MRU (c), tail = LRU (b)
//	free:  [ ]                    recycled slots
//
// # Semantics
//
//   - Set inserts or overwrites and moves the entry to the head. A fresh
//     insert that pushes the count over capacity evicts the tail once.
//   - Get moves a live entry to the head. An entry whose expiry has passed is
//     deleted on the spot and reported as a miss.
//   - Delete removes an entry whether or not it has expired.
//
// Recency is a total order: the entry untouched the longest, by Set or Get,
// is always the next to go.
//
// # Observability
//
// Options.Metrics receives hit, miss, eviction and size events; the
// Prometheus adapter in package metrics implements it. Stats returns the
// same counters as a snapshot.
package cache
