package ring

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withHashes builds a ring whose members sit at fixed hash positions so the
// lookup rules can be checked against known numbers.
func withHashes(hashes ...uint32) *Ring {
	r := New(len(hashes))
	for i, h := range hashes {
		r.nodes = append(r.nodes, Node{Address: fmt.Sprintf("n%d", i), Hash: h})
	}
	return r
}

func TestHash(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Hash("127.0.0.1:8080"), Hash("127.0.0.1:8080"))
		assert.NotEqual(t, Hash("127.0.0.1:8080"), Hash("127.0.0.1:8081"))
	})

	// md5("") = d41d8cd9..., md5("a") = 0cc175b9...
	t.Run("first four digest bytes big endian", func(t *testing.T) {
		assert.Equal(t, uint32(0xd41d8cd9), Hash(""))
		assert.Equal(t, uint32(0x0cc175b9), Hash("a"))
	})
}

func TestNew(t *testing.T) {
	r := New(10)
	require.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 10, r.Capacity())
	assert.Empty(t, r.Members())

	_, ok := r.Owner("k")
	assert.False(t, ok, "empty ring has no owner")
}

// TestAddKeepsSorted verifies the ring is ascending by hash after every Add.
func TestAddKeepsSorted(t *testing.T) {
	r := New(20)
	for i := 0; i < 20; i++ {
		n, err := r.Add(fmt.Sprintf("10.0.0.%d:8080", i))
		require.NoError(t, err)
		assert.Equal(t, Hash(n.Address), n.Hash)

		members := r.Members()
		require.Len(t, members, i+1)
		assert.True(t, sort.SliceIsSorted(members, func(a, b int) bool {
			return members[a].Hash < members[b].Hash
		}), "members not sorted after add %d", i)
	}
}

func TestAddErrors(t *testing.T) {
	t.Run("capacity exceeded", func(t *testing.T) {
		r := New(2)
		_, err := r.Add("a:1")
		require.NoError(t, err)
		_, err = r.Add("b:1")
		require.NoError(t, err)

		_, err = r.Add("c:1")
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Equal(t, 2, r.Len())
		assert.False(t, r.Contains("c:1"))
	})

	t.Run("duplicate address", func(t *testing.T) {
		r := New(5)
		_, err := r.Add("a:1")
		require.NoError(t, err)

		_, err = r.Add("a:1")
		assert.ErrorIs(t, err, ErrDuplicateAddress)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("duplicate address at capacity reports duplicate", func(t *testing.T) {
		r := New(1)
		_, err := r.Add("a:1")
		require.NoError(t, err)

		_, err = r.Add("a:1")
		assert.ErrorIs(t, err, ErrDuplicateAddress)
	})

	t.Run("hash collision", func(t *testing.T) {
		r := New(5)
		r.nodes = append(r.nodes, Node{Address: "other", Hash: Hash("a:1")})

		_, err := r.Add("a:1")
		assert.ErrorIs(t, err, ErrHashCollision)
		assert.Equal(t, 1, r.Len())
	})
}

func TestRemove(t *testing.T) {
	r := withHashes(10, 50, 90)

	require.NoError(t, r.Remove("n1"))
	assert.Equal(t, []Node{{Address: "n0", Hash: 10}, {Address: "n2", Hash: 90}}, r.Members())

	err := r.Remove("n1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, r.Len())
}

// TestOwnerLookup checks the documented examples: with members at {10, 50, 90}
// a key hash of 60 belongs to 90 and 95 wraps to 10.
func TestOwnerLookup(t *testing.T) {
	r := withHashes(10, 50, 90)

	tests := []struct {
		keyHash uint32
		want    uint32
	}{
		{keyHash: 0, want: 10},
		{keyHash: 10, want: 10},
		{keyHash: 11, want: 50},
		{keyHash: 50, want: 50},
		{keyHash: 60, want: 90},
		{keyHash: 90, want: 90},
		{keyHash: 95, want: 10},
		{keyHash: ^uint32(0), want: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hash %d", tt.keyHash), func(t *testing.T) {
			assert.Equal(t, tt.want, r.lookupLocked(tt.keyHash).Hash)
		})
	}
}

// TestOwnerMatchesLinearScan compares the binary search against the plain
// ascending scan definition for many keys.
func TestOwnerMatchesLinearScan(t *testing.T) {
	r := New(8)
	for i := 0; i < 8; i++ {
		_, err := r.Add(fmt.Sprintf("127.0.0.1:%d", 8080+i))
		require.NoError(t, err)
	}
	members := r.Members()

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		h := Hash(key)

		want := members[0]
		for _, m := range members {
			if h <= m.Hash {
				want = m
				break
			}
		}

		got, ok := r.Owner(key)
		require.True(t, ok)
		assert.Equal(t, want, got, "key %s", key)

		again, _ := r.Owner(key)
		assert.Equal(t, got, again, "owner must be deterministic")
	}
}

func TestSuccessor(t *testing.T) {
	r := withHashes(10, 50, 90)

	next, ok := r.Successor("n0")
	require.True(t, ok)
	assert.Equal(t, "n1", next.Address)

	next, ok = r.Successor("n2")
	require.True(t, ok)
	assert.Equal(t, "n0", next.Address, "last member wraps to first")

	_, ok = r.Successor("missing")
	assert.False(t, ok)

	single := withHashes(10)
	_, ok = single.Successor("n0")
	assert.False(t, ok, "a single member has no successor")
}

// TestRemovedNodeNeverReturned verifies that once removed a node is neither
// owner nor successor of anything.
func TestRemovedNodeNeverReturned(t *testing.T) {
	r := New(4)
	for _, a := range []string{"a:1", "b:1", "c:1", "d:1"} {
		_, err := r.Add(a)
		require.NoError(t, err)
	}
	require.NoError(t, r.Remove("c:1"))

	for i := 0; i < 500; i++ {
		owner, ok := r.Owner(fmt.Sprintf("k%d", i))
		require.True(t, ok)
		assert.NotEqual(t, "c:1", owner.Address)
	}
	for _, a := range []string{"a:1", "b:1", "d:1"} {
		next, ok := r.Successor(a)
		require.True(t, ok)
		assert.NotEqual(t, "c:1", next.Address)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New(50)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.1.0.%d:9000", i)
			_, _ = r.Add(addr)
			r.Owner(addr)
			r.Successor(addr)
			if i%2 == 0 {
				_ = r.Remove(addr)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Len())
	members := r.Members()
	assert.True(t, sort.SliceIsSorted(members, func(a, b int) bool {
		return members[a].Hash < members[b].Hash
	}))
}
