package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps state in process memory. It is what tests and
// short-lived hosts use.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.LastSnapshot = s.LastSnapshot.Clone()
	return s, nil
}

func (m *MemoryStore) SeedLastSubmit(_ context.Context, t time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.LastSubmit.IsZero() {
		return m.state.LastSubmit, false, nil
	}
	m.state.LastSubmit = t
	return t, true, nil
}

func (m *MemoryStore) SetLastSubmit(_ context.Context, t time.Time) error {
	m.mu.Lock()
	m.state.LastSubmit = t
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CommitSuccess(_ context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastSubmit = c.Timestamp
	if c.BatchID != "" {
		m.state.LastBatchID = c.BatchID
	}
	if c.Snapshot != nil {
		m.state.LastSnapshot = c.Snapshot.Clone()
	}
	return nil
}
