package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests, demos, and single-process
// deployments that can afford to lose checkpoints on restart. Safe for
// concurrent use; data is copied on the way in and out, never aliased.
type MemStore struct {
	mu          sync.RWMutex
	checkpoints map[string][]Checkpoint
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{checkpoints: make(map[string][]Checkpoint)}
}

// Save implements Store. Versions are assigned under the write lock, so
// collisions cannot happen within one process.
func (m *MemStore) Save(_ context.Context, interviewID string, blob []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.checkpoints[interviewID]
	version := 1
	if n := len(existing); n > 0 {
		version = existing[n-1].Version + 1
	}
	m.checkpoints[interviewID] = append(existing, Checkpoint{
		InterviewID: interviewID,
		Version:     version,
		Blob:        append([]byte(nil), blob...),
		CreatedAt:   time.Now().UTC(),
	})
	return version, nil
}

// LoadLatest implements Store.
func (m *MemStore) LoadLatest(_ context.Context, interviewID string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := m.checkpoints[interviewID]
	if len(existing) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	return copyCheckpoint(existing[len(existing)-1]), nil
}

// LoadVersion implements Store.
func (m *MemStore) LoadVersion(_ context.Context, interviewID string, version int) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cp := range m.checkpoints[interviewID] {
		if cp.Version == version {
			return copyCheckpoint(cp), nil
		}
	}
	return Checkpoint{}, ErrNotFound
}

// Purge implements Store.
func (m *MemStore) Purge(_ context.Context, interviewID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.checkpoints[interviewID])
	delete(m.checkpoints, interviewID)
	return removed, nil
}

func copyCheckpoint(cp Checkpoint) Checkpoint {
	cp.Blob = append([]byte(nil), cp.Blob...)
	return cp
}
