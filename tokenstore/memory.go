package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store. Expired entries are evicted lazily on access.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]record
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]record),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or ErrNotFound when it is absent or expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if entry.expired(m.now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have replaced it.
		if current, ok := m.entries[key]; ok && current.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return value, nil
}

// Put stores value under key. A non-positive ttl keeps it until Forget.
func (m *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = newRecord(stored, ttl, m.now())
	return nil
}

// Forget removes key. Removing an absent key is not an error.
func (m *Memory) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

var _ Store = (*Memory)(nil)
