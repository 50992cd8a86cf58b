package wardencrypto

import (
	"crypto/rand"
	"errors"
	"io"
)

// ErrDestroyed is returned when a destroyed SecureBytes is used.
var ErrDestroyed = errors.New("secure bytes destroyed")

// Reader is the random source for salts, nonces and credential keys.
// Tests may swap it for a deterministic reader.
//
//nolint:gochecknoglobals // Package-level RNG is required for testability
var Reader io.Reader = rand.Reader

// RandomBytes returns n bytes from Reader.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SecureRandomBytes returns n random bytes held in locked memory.
func SecureRandomBytes(n int) (*SecureBytes, error) {
	sb, err := NewSecureBytes(n)
	if err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(Reader, sb.Bytes()); err != nil {
		sb.Destroy()
		return nil, err
	}

	return sb, nil
}
