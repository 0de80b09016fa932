package autosave

import (
	"context"
	"errors"
	"sync"
)

// FallbackStore is the client-local keyed table holding snapshots that could
// not reach the remote store. Keys come from PersistenceKey.FallbackKey.
type FallbackStore interface {
	Get(ctx context.Context, key string) (FallbackRecord, bool, error)
	Set(ctx context.Context, key string, rec FallbackRecord) error
	Delete(ctx context.Context, key string) error
}

// ErrStoreFull is returned by MemoryFallback when its capacity is reached,
// mirroring a storage quota failure.
var ErrStoreFull = errors.New("autosave: fallback store is full")

// MemoryFallback is an in-process FallbackStore. It does not survive the
// process; use localstore.Store for durable fallback. Safe for concurrent use.
type MemoryFallback struct {
	mu       sync.Mutex
	records  map[string]FallbackRecord
	capacity int
}

// NewMemoryFallback creates a store holding at most capacity records.
// Zero means unlimited.
func NewMemoryFallback(capacity int) *MemoryFallback {
	return &MemoryFallback{
		records:  make(map[string]FallbackRecord),
		capacity: capacity,
	}
}

// Get returns the record stored under key.
func (m *MemoryFallback) Get(_ context.Context, key string) (FallbackRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]

	return rec, ok, nil
}

// Set stores rec under key, replacing any previous record.
func (m *MemoryFallback) Set(_ context.Context, key string, rec FallbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[key]; !exists && m.capacity > 0 && len(m.records) >= m.capacity {
		return ErrStoreFull
	}

	m.records[key] = rec

	return nil
}

// Delete removes the record under key. Deleting a missing key is a no-op.
func (m *MemoryFallback) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)

	return nil
}

// Len returns the number of stored records.
func (m *MemoryFallback) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records)
}
