package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for testing and single-process deployments where persistence
// across restarts is not required. Thread-safe.
type MemStore[S any] struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint[S] // threadID -> checkpoint
	now         func() time.Time
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		checkpoints: make(map[string]Checkpoint[S]),
		now:         time.Now,
	}
}

// Save overwrites the checkpoint for cp.ThreadID.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = m.now()
	m.checkpoints[cp.ThreadID] = cp
	return nil
}

// Load retrieves the checkpoint for a thread.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[threadID]
	if !ok {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	return cp, nil
}

// Delete removes a thread's checkpoint.
func (m *MemStore[S]) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, threadID)
	return nil
}

// SweepSuspended deletes suspended checkpoints older than olderThan.
func (m *MemStore[S]) SweepSuspended(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	removed := 0
	for id, cp := range m.checkpoints {
		if cp.Suspended() && cp.UpdatedAt.Before(cutoff) {
			delete(m.checkpoints, id)
			removed++
		}
	}
	return removed, nil
}
