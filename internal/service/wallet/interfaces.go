package wallet

import (
	"context"

	"github.com/mrz1836/warden/internal/broadcast"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/tx"
	"github.com/mrz1836/warden/internal/vault"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

// KeyVault seals and opens private keys. vault.Vault satisfies it.
type KeyVault interface {
	Encrypt(privateKey, password []byte) (*vault.Sealed, error)
	Decrypt(ciphertext, salt, password []byte) (*wardencrypto.SecureBytes, error)
}

// SessionManager tracks which wallets are unlocked. session.Manager satisfies it.
type SessionManager interface {
	session.KeySource
	Unlock(ctx context.Context, address string, password []byte) error
	Lock(address string) error
	LockAll() int
	IsUnlocked(address string) bool
	Status(address string) session.Status
	Exclusive(ctx context.Context, address string, fn func() error) error
}

// TxSigner signs transactions with a borrowed key. tx.Signer satisfies it.
type TxSigner interface {
	Sign(ctx context.Context, u *tx.Unsigned, address string, keySource session.KeySource) (*tx.Signed, error)
}

// Broadcaster submits signed transactions.
type Broadcaster = broadcast.Broadcaster

// LogWriter is the logging surface the service needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}
