package stats

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	total  int64
	recent []time.Time
	keep   int
}

// NewMemoryStore returns a MemoryStore that retains keep recent timestamps.
func NewMemoryStore(keep int) *MemoryStore {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &MemoryStore{keep: keep}
}

func (m *MemoryStore) Increment(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.recent = append(m.recent, at)
	if len(m.recent) > m.keep {
		m.recent = m.recent[len(m.recent)-m.keep:]
	}
	return nil
}

func (m *MemoryStore) RecentTimestamps(_ context.Context, n int) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tail(m.recent, n), nil
}

func (m *MemoryStore) Total(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

func (m *MemoryStore) Close() error { return nil }
