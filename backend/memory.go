package backend

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

// Memory is an ordered in-process store on a B-tree
type Memory struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	closed bool
}

func entryLess(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{tree: btree.NewG[entry](32, entryLess)}
}

func (m *Memory) Put(_ context.Context, key, value []byte) error {
	e := entry{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.tree.ReplaceOrInsert(e)
	return nil
}

func (m *Memory) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	e, ok := m.tree.Get(entry{key: key})
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.tree.Delete(entry{key: key})
	return nil
}

// Scan copies out at most limit entries under the read lock. Stored entries
// are never mutated in place, so the slices stay valid after unlock.
func (m *Memory) Scan(_ context.Context, start []byte, limit int) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errIterator(ErrClosed)
	}
	it := &sliceIterator{}
	if limit <= 0 {
		return it
	}
	it.entries = make([]entry, 0, limit)
	m.tree.AscendGreaterOrEqual(entry{key: start}, func(e entry) bool {
		it.entries = append(it.entries, e)
		return len(it.entries) < limit
	})
	return it
}

// Len returns the number of stored keys
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tree.Clear(false)
	return nil
}
