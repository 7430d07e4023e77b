// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
)

// Store implements storage.Store with a map.
type Store struct {
	mu       sync.RWMutex
	readings map[string]storage.Reading
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		readings: make(map[string]storage.Reading),
	}
}

// Put records r as the latest reading of its signal.
func (m *Store) Put(_ context.Context, r *storage.Reading) error {
	if r == nil {
		return fmt.Errorf("reading cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	r.Count = m.readings[r.Name].Count + 1
	m.readings[r.Name] = *r
	return nil
}

// Get returns a copy of the latest reading of name.
func (m *Store) Get(_ context.Context, name string) (*storage.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.readings[name]
	if !ok {
		return nil, &storage.NotFoundError{Name: name}
	}
	return &r, nil
}

// List returns copies of all readings sorted by name.
func (m *Store) List(_ context.Context) ([]*storage.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*storage.Reading, 0, len(m.readings))
	for _, r := range m.readings {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op.
func (m *Store) Close() error {
	return nil
}
