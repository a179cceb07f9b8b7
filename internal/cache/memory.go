package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Snapshot, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[userID]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// another writer may have replaced the entry meanwhile
		if current, still := m.entries[userID]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, userID)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.snapshot.clone(), true, nil
}

func (m *MemoryStore) Set(_ context.Context, snapshot *Snapshot, ttl time.Duration) error {
	entry := memoryEntry{snapshot: snapshot.clone(), expiresAt: m.now().Add(ttl)}

	m.mu.Lock()
	m.entries[snapshot.UserID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
