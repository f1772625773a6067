// Package cluster provides the network plumbing shared by every ringcache
// process: the request/reply round trip used to forward requests to cache
// nodes, the liveness probe, the node announcement datagram, and the TCP
// accept loop that the dispatcher, the cache nodes and the backing store all
// serve connections with.
//
// # Overview
//
// All inter-process traffic is plain text over TCP, one line per request and
// one line per reply (see package protocol). The only connectionless message
// is the announcement a node sends to the dispatcher on startup:
//
//	┌────────────┐  UDP "host:port"   ┌──────────────┐
//	│ Cache Node │ ─────────────────▶ │  Dispatcher  │
//	│            │ ◀───────────────── │              │
//	└────────────┘  TCP connect probe └──────────────┘
//	      ▲                                  │
//	      └──────── TCP "get k" / reply ─────┘
//
// # Communication Primitives
//
// Exchange: dial, write one line, read one line, close
//   - Used for primary forwarding, replica forwarding and backing store calls
//   - Dial and round trip are bounded by a single timeout
//
// Probe: dial and close
//   - A successful connect means the node is alive
//   - Any failure, timeout included, means it is dead
//
// Announce: one UDP datagram carrying the node's public "host:port"
//   - No acknowledgment; callers may repeat it
//
// # Failure Handling
//
// Every failure is wrapped in ErrTransport so call sites can tell a broken
// peer from a protocol problem with errors.Is. Transport errors are always
// converted to a text reply at the boundary where they occur; they never
// remove a node from the ring. Only the dispatcher's health monitor does that.
//
// # Concurrency Model
//
// Server runs one goroutine per accepted connection and bounds the number of
// concurrent connections with a weighted semaphore. Canceling the context
// passed to Serve closes the listener and every open connection, then waits
// for the handlers to return.
package cluster
