package registry

import (
	"context"
	"sync"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// MemoryStore is an in-process Store. Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Key()]; ok {
		return wardenerr.WithDetails(wardenerr.ErrWalletExists, map[string]string{"address": e.Address})
	}
	m.entries[e.Key()] = e.Clone()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, address string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, notFound(address)
	}
	return e.Clone(), nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Key()]; !ok {
		return notFound(e.Address)
	}
	m.entries[e.Key()] = e.Clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return notFound(address)
	}
	delete(m.entries, key)
	return nil
}
