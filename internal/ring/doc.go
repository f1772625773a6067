// Package ring provides the membership ring the dispatcher routes with.
//
// # Overview
//
// Every cache node is placed on a 32-bit ring at Hash(address). A key is owned
// by the first node at or after Hash(key), wrapping around past the top of the
// ring to the node with the smallest hash. The node after the owner is its
// successor and receives replicated writes.
//
//	         0 ─────────────────────────────── 2^32-1
//	members:     [n1: 10]     [n2: 50]     [n3: 90]
//	key 60  ─────────────────────────▶ n3
//	key 95  ──▶ wraps ──▶ n1
//	successor(n3) = n1
//
// # Membership
//
// Members join through Add when the dispatcher receives an announcement and
// leave through Remove when the health monitor finds them unreachable. An
// address that is already a member is rejected rather than re-hashed, so a
// node that repeats its announcement is harmless. Two different addresses
// with the same hash cannot both be members.
//
// # Concurrency
//
// Ring is internally synchronized with one RWMutex covering the whole member
// list. The list is small and bounded, so a single coarse lock is enough;
// callers must not hold results across a mutation and expect them to still
// be members.
package ring
