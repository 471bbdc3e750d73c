package saved

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and the mock mode.
type MemoryStore struct {
	mu      sync.RWMutex
	queries map[string]Query
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{queries: map[string]Query{}, now: now}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, q Query) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *Query
	if existing, ok := m.queries[q.ID]; ok && q.ID != "" {
		prev = &existing
	}
	q, err := Prepare(q, prev, m.now())
	if err != nil {
		return "", err
	}
	m.queries[q.ID] = q
	return q.ID, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queries[id]
	if !ok {
		return Query{}, ErrNotFound
	}
	return q, nil
}

// List implements Store.
func (m *MemoryStore) List(context.Context) ([]Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Query, 0, len(m.queries))
	for _, q := range m.queries {
		out = append(out, q)
	}
	Sort(out)
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[id]; !ok {
		return ErrNotFound
	}
	delete(m.queries, id)
	return nil
}
