package credential

import (
	"context"
	"sync"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// MemoryStore holds the credential for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	cred *Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, wardenerr.ErrCredentialNotFound
	}
	return m.cred.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, c *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.Token == "" {
		return wardenerr.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = c.Clone()
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}
