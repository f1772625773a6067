// Package node implements the cache node service: a cache.Engine exposed
// over the newline-terminated text protocol, announcing itself to the
// dispatcher over UDP.
//
// # Lifecycle
//
//	bind listener ─▶ announce "host:port" ─▶ serve connections
//	                      ▲                        │
//	                      └── every interval ──────┘ (optional)
//
// The listener is bound before the first announcement so the dispatcher's
// health probe can connect as soon as the node joins the ring. A node that
// the dispatcher removes must announce again to rejoin; setting
// Options.AnnounceInterval does that automatically.
//
// # Requests
//
// A connection may carry any number of request lines. Each is answered with
// exactly one reply line:
//
//	set <key> <value> [ttl]   → OK
//	get <key>                 → <value> | null
//	delete <key>              → OK
//	anything else             → Invalid command
//
// # Backing store
//
// With Options.Backend set, a get miss is filled from the backing store and
// cached with Options.FillTTL. Concurrent misses for the same key are
// coalesced. A store that cannot be reached degrades to null. With
// Options.WriteThrough, set and delete are mirrored into the store after the
// engine is updated.
package node
