package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and as a fallback when no
// database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry for key, or nil if absent.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put writes value under key, last write wins.
func (m *MemoryStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gen := int64(1)
	if prev, ok := m.entries[key]; ok {
		gen = prev.Generation + 1
	}
	m.entries[key] = Entry{Key: key, Value: value, Generation: gen, CreatedAt: time.Now()}
	return nil
}

// Delete removes an entry.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// SetCreatedAt backdates an entry, for TTL tests.
func (m *MemoryStore) SetCreatedAt(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.CreatedAt = t
		m.entries[key] = e
	}
}

var _ Store = (*MemoryStore)(nil)
