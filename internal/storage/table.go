package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrKeyNotFound is returned when a key has no value in the backing store.
var ErrKeyNotFound = errors.New("key not found")

// Backend is the system of record a cache node falls back to on a miss and,
// with write-through enabled, mirrors writes into.
//
// Implementations must be safe for concurrent use. Get returns
// ErrKeyNotFound (possibly wrapped) for an absent key; any other error means
// the store could not be consulted.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TableStats is a point-in-time summary of a Table.
type TableStats struct {
	Keys  int // Number of keys
	Bytes int // Total size of all values in bytes
}

// Table is an in-memory key/value table guarded by a RWMutex. It is the data
// behind the reference store server and doubles as an in-process Backend.
type Table struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{data: make(map[string]string)}
}

// SeededTable creates a table holding key0..key(n-1) mapped to
// value0..value(n-1).
//
// Example:
//
//	t := SeededTable(10)
//	v, _ := t.Get(ctx, "key3") // "value3"
func SeededTable(n int) *Table {
	t := NewTable()
	for i := 0; i < n; i++ {
		t.data[fmt.Sprintf("key%d", i)] = fmt.Sprintf("value%d", i)
	}
	return t
}

// Get returns the value stored under key or ErrKeyNotFound.
func (t *Table) Get(_ context.Context, key string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (t *Table) Set(_ context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (t *Table) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.data, key)
	return nil
}

// Keys returns every key in ascending order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Stats returns the key count and total value size.
func (t *Table) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, v := range t.data {
		total += len(v)
	}
	return TableStats{Keys: len(t.data), Bytes: total}
}

var _ Backend = (*Table)(nil)
