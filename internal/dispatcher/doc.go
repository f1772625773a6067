// Package dispatcher implements the cluster's single entry point: it admits
// cache nodes into the membership ring, routes client requests to the node
// owning each key, replicates them to that node's successor and removes
// nodes that stop answering health probes.
//
// # Architecture
//
//	           UDP "host:port"                 TCP request line
//	 nodes ───────────────────▶ ┌────────────────────────────┐ ◀──── clients
//	                            │         DISPATCHER          │
//	                            ├────────────────────────────┤
//	                            │  ListenAnnouncements        │
//	                            │    Admit → ring.Add         │
//	                            │                             │
//	                            │  Serve (one goroutine per   │
//	                            │  client, semaphore bounded) │
//	                            │    Dispatch → ring.Owner    │
//	                            │             → ring.Successor│
//	                            │                             │
//	                            │  HealthMonitor              │
//	                            │    probe all → ring.Remove  │
//	                            └────────────────────────────┘
//
// # Request flow
//
// Each client connection carries one request:
//
//	Accepted → Parse → ResolveOwner → ForwardPrimary → [Replicate] → Respond → Closed
//
//   - A malformed line is answered with "Invalid command".
//   - An empty ring is answered with "Error: No available server".
//   - An owner that cannot be reached is answered with
//     "Error: Server connection failed"; the ring is left alone.
//   - Otherwise the client gets "Primary Server: <addr> | Response: <reply>".
//
// When the owner has a distinct successor, set and delete are sent to it on a
// background goroutine and the client does not wait. A get is sent to the
// successor synchronously and, when it answers, a second line
// "Replica Server: <addr> | Response: <reply>" follows on the same
// connection.
//
// # Membership
//
// Announcements add nodes; only the HealthMonitor removes them. Announcing
// an address that is already a member is a no-op, so nodes may re-announce
// periodically. A node whose address hashes onto an existing member's hash,
// or that arrives when the ring is full, is dropped with a warning.
//
// # Locking
//
// The ring lock is never held across network I/O. Routing reads the owner
// and successor and releases the lock before dialing; the health monitor
// snapshots the members, probes without the lock and then removes the
// failures.
package dispatcher
