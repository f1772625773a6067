// Package ring implements the consistent-hashing membership ring that maps
// keys to cache nodes. See doc.go for the full package documentation.
package ring

import (
	"cmp"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

var (
	// ErrCapacityExceeded is returned by Add when the ring already holds its
	// configured maximum number of members.
	ErrCapacityExceeded = errors.New("ring capacity exceeded")
	// ErrNotFound is returned when an address is not a ring member.
	ErrNotFound = errors.New("node not found in ring")
	// ErrDuplicateAddress is returned by Add for an address that is already a member.
	ErrDuplicateAddress = errors.New("address already in ring")
	// ErrHashCollision is returned by Add when a different address already
	// occupies the same hash position.
	ErrHashCollision = errors.New("hash collides with existing member")
)

// Node is a ring member. It is immutable once added: the hash is computed
// exactly once, from the address, when the node joins.
type Node struct {
	Address string // host:port the node serves the text protocol on
	Hash    uint32 // Hash(Address)
}

// Ring is an ordered set of nodes, strictly ascending by hash, bounded by a
// maximum member count. It is the authoritative routing table owned by the
// dispatcher and knows nothing about liveness; the health monitor drives
// Remove from the outside.
//
// Concurrency Model:
//   - Owner, Successor and the accessors share a read lock
//   - Add and Remove take the write lock
//   - No lock is ever held across network I/O; callers copy what they need
//
// Performance Characteristics:
//   - Owner: O(log n) binary search
//   - Successor, Remove: O(n) scan by address
//   - Add: O(n log n) re-sort (n is small and bounded)
type Ring struct {
	// nodes is kept sorted ascending by Hash after every mutation.
	nodes []Node

	// mu guards nodes.
	mu sync.RWMutex

	// maxNodes is fixed at construction.
	maxNodes int
}

// Hash maps s to its ring position: the first four bytes of the MD5 digest
// of s, most significant byte first. It is stable across processes.
func Hash(s string) uint32 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// New creates an empty ring that accepts at most maxNodes members.
//
// Example:
//
//	r := ring.New(10)
//	r.Add("127.0.0.1:8080")
//	owner, ok := r.Owner("user:42")
func New(maxNodes int) *Ring {
	return &Ring{
		nodes:    make([]Node, 0, maxNodes),
		maxNodes: maxNodes,
	}
}

// Add hashes address, inserts it and restores ascending hash order.
//
// Returns:
//   - the new member on success
//   - ErrDuplicateAddress if address is already a member (ring unchanged)
//   - ErrHashCollision if another address has the same hash (ring unchanged)
//   - ErrCapacityExceeded if the ring is full (ring unchanged)
func (r *Ring) Add(address string) (Node, error) {
	n := Node{Address: address, Hash: Hash(address)}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.nodes {
		if m.Address == address {
			return Node{}, fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
		}
		if m.Hash == n.Hash {
			return Node{}, fmt.Errorf("%w: %s and %s both hash to %d", ErrHashCollision, address, m.Address, n.Hash)
		}
	}
	if len(r.nodes) >= r.maxNodes {
		return Node{}, fmt.Errorf("%w: %d members", ErrCapacityExceeded, r.maxNodes)
	}

	r.nodes = append(r.nodes, n)
	slices.SortFunc(r.nodes, func(a, b Node) int { return cmp.Compare(a.Hash, b.Hash) })
	return n, nil
}

// Remove deletes the member with the given address, keeping the relative
// order of the others. Returns ErrNotFound if address is not a member.
func (r *Ring) Remove(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	r.nodes = slices.Delete(r.nodes, i, i+1)
	return nil
}

// Owner returns the member responsible for key: the first member whose hash
// is greater than or equal to Hash(key), wrapping around to the member with
// the smallest hash. ok is false only when the ring is empty.
func (r *Ring) Owner(key string) (owner Node, ok bool) {
	h := Hash(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return Node{}, false
	}
	return r.lookupLocked(h), true
}

// Successor returns the member that follows address in ascending hash order,
// wrapping to the first member after the last. ok is false when address is
// not a member or the ring has fewer than two members.
func (r *Ring) Successor(address string) (next Node, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) < 2 {
		return Node{}, false
	}
	i := r.indexLocked(address)
	if i < 0 {
		return Node{}, false
	}
	return r.nodes[(i+1)%len(r.nodes)], true
}

// Members returns a copy of the current members in ascending hash order.
func (r *Ring) Members() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.nodes)
}

// Contains reports whether address is a member.
func (r *Ring) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(address) >= 0
}

// Len returns the number of members.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Capacity returns the configured maximum number of members.
func (r *Ring) Capacity() int {
	return r.maxNodes
}

// lookupLocked finds the owner of hash h. The ring must be non-empty.
func (r *Ring) lookupLocked(h uint32) Node {
	i, _ := slices.BinarySearchFunc(r.nodes, h, func(n Node, target uint32) int {
		return cmp.Compare(n.Hash, target)
	})
	if i == len(r.nodes) {
		i = 0
	}
	return r.nodes[i]
}

func (r *Ring) indexLocked(address string) int {
	return slices.IndexFunc(r.nodes, func(n Node) bool { return n.Address == address })
}
