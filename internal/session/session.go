// Package session holds unlocked wallets in memory. A wallet is either Locked
// or Unlocked with its decrypted key; nothing here is ever written to disk, so
// a restart leaves every wallet Locked.
package session

import (
	"context"
	"time"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

// state is the closed set of session states: locked or unlocked.
type state interface {
	isState()
}

type locked struct{}

type unlocked struct {
	key        *wardencrypto.SecureBytes
	curve      keys.Curve
	publicKey  []byte
	unlockedAt time.Time
	lastUsedAt time.Time
}

func (locked) isState()    {}
func (*unlocked) isState() {}

// Status is a read-only view of one wallet's session.
type Status struct {
	Address    string     `json:"address"`
	Unlocked   bool       `json:"unlocked"`
	Curve      keys.Curve `json:"curve,omitempty"`
	UnlockedAt time.Time  `json:"unlocked_at,omitzero"`
	LastUsedAt time.Time  `json:"last_used_at,omitzero"`
}

// Key is the borrowed view of an unlocked wallet handed to WithKey callbacks.
// PrivateKey is only valid for the duration of the callback.
type Key struct {
	Address    string
	Curve      keys.Curve
	PublicKey  []byte
	PrivateKey []byte
}

// KeySource lends an unlocked key for one call.
type KeySource interface {
	WithKey(ctx context.Context, address string, fn func(Key) error) error
}

// EntrySource looks up wallet records. registry.Store satisfies it.
type EntrySource interface {
	Get(ctx context.Context, address string) (*registry.Entry, error)
}

// Decrypter opens a sealed key. vault.Vault satisfies it.
type Decrypter interface {
	Decrypt(ciphertext, salt, password []byte) (*wardencrypto.SecureBytes, error)
}

// LogWriter is the logging surface the manager needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
