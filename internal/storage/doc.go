// Package storage provides the backing store that cache nodes consult on a
// miss: the Backend interface, an in-memory Table, a line-protocol Server
// exposing a Backend, and a Client that implements Backend against a
// remote Server.
//
// # Architecture
//
//	┌──────────────┐   get/set/delete    ┌──────────────┐
//	│  cache node  │ ──────────────────▶ │ store Server │
//	│  (Client)    │ ◀────────────────── │  (Table)     │
//	└──────────────┘   value | null | OK └──────────────┘
//
// The store speaks the same newline-terminated text protocol as the cache
// nodes:
//
//	set <key> <value> [ttl]   → OK        (ttl ignored)
//	get <key>                 → <value> | null
//	delete <key>              → OK
//	anything else             → Invalid command
//
// # Seeding
//
// SeededTable(n) pre-populates key0..key(n-1) with value0..value(n-1), so a
// freshly started cluster has data to fill from.
//
// # Concurrency
//
// Table guards its map with a sync.RWMutex: gets share the lock, sets and
// deletes take it exclusively. Client opens one connection per call and is
// safe for concurrent use.
//
// # Errors
//
// ErrKeyNotFound marks an absent key. Client returns cluster.ErrTransport
// (wrapped) when the store cannot be reached; callers treat that as a miss.
package storage
