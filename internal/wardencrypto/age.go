package wardencrypto

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
)

// DefaultScryptWorkFactor is the scrypt log2(N) used for age files.
const DefaultScryptWorkFactor = 18

//nolint:gochecknoglobals // Tuned down in tests only
var scryptWorkFactor atomic.Int32

func init() {
	scryptWorkFactor.Store(DefaultScryptWorkFactor)
}

// SetScryptWorkFactor changes the scrypt cost of new age files.
// Decryption accepts any factor up to the default.
func SetScryptWorkFactor(logN int) {
	scryptWorkFactor.Store(int32(logN)) //nolint:gosec // small bounded value
}

// Seal encrypts plaintext to a passphrase-based age recipient.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(int(scryptWorkFactor.Load()))

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	return buf.Bytes(), nil
}

// Open decrypts an age file produced by Seal into locked memory.
func Open(ciphertext []byte, passphrase string) (*SecureBytes, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	identity.SetMaxWorkFactor(DefaultScryptWorkFactor)

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	defer Wipe(plaintext)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}

	return SecureBytesFromSlice(plaintext)
}
