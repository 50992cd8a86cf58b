// Package wardencrypto holds the low-level primitives shared by the vault and
// the credential store: locked memory for secrets, the random source, and age
// encryption for small local files.
package wardencrypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// SecureBytes holds a secret in memory that is mlocked where the platform
// allows it and zeroed on Destroy.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes allocates a zeroed secret buffer of the given size.
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{data: make([]byte, size)}
	sb.locked = mlock(sb.data)

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// SecureBytesFromSlice copies data into a new SecureBytes. The caller still
// owns data and is expected to wipe it.
func SecureBytesFromSlice(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}
	copy(sb.data, data)
	return sb, nil
}

// Bytes returns the underlying slice, or nil once destroyed.
// The slice must not be retained past the owner's Destroy call.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Clone returns an independent copy.
func (s *SecureBytes) Clone() (*SecureBytes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrDestroyed
	}
	return SecureBytesFromSlice(s.data)
}

// Equal compares two secrets in constant time.
func (s *SecureBytes) Equal(other []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data != nil && subtle.ConstantTimeCompare(s.data, other) == 1
}

// IsLocked reports whether the memory is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeros and unlocks the memory. Safe to call more than once.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	Wipe(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil

	runtime.SetFinalizer(s, nil)
}

// Len returns the length of the secret, 0 once destroyed.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Wipe zeros b in place.
// runtime.KeepAlive keeps the compiler from eliding the stores.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
