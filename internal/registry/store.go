package registry

import (
	"context"
	"sort"
)

// Store persists wallet records. Every mutation replaces a whole record.
type Store interface {
	// Create adds a record; ErrWalletExists if the address is taken.
	Create(ctx context.Context, e *Entry) error

	// Get returns the record for address; ErrWalletNotFound if absent.
	Get(ctx context.Context, address string) (*Entry, error)

	// List returns all records, oldest first.
	List(ctx context.Context) ([]*Entry, error)

	// Update replaces an existing record; ErrWalletNotFound if absent.
	Update(ctx context.Context, e *Entry) error

	// Delete removes a record; ErrWalletNotFound if absent.
	Delete(ctx context.Context, address string) error
}

// LogWriter is the logging surface the stores need.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Key() < entries[j].Key()
	})
}
