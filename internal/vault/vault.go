// Package vault seals private keys under a password.
//
// A key is derived with Argon2id from the password and a fresh random salt,
// then the private key is encrypted with XChaCha20-Poly1305. Every call to
// Encrypt draws a new salt and nonce, so sealing the same key twice never
// produces the same record.
//
// Ciphertext layout:
//
//	version(1) | time(4) | memoryKiB(4) | threads(1) | nonce(24) | sealed box
//
// The header is authenticated as additional data.
package vault

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// SaltSize is the length of the per-record salt.
	SaltSize = 16

	formatVersion = 1
	headerSize    = 1 + 4 + 4 + 1
	keySize       = chacha20poly1305.KeySize
)

// Params are the Argon2id cost parameters.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams follow the RFC 9106 second recommended profile.
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Bounds accepted by Decrypt. A record asking for more is treated as garbled.
const (
	maxTime      = 16
	maxMemoryKiB = 1024 * 1024
	maxThreads   = 16
)

// Valid reports whether p is within the bounds Decrypt accepts.
func (p Params) Valid() bool {
	return p.Time >= 1 && p.Time <= maxTime &&
		p.MemoryKiB >= 8*uint32(max(p.Threads, 1)) && p.MemoryKiB <= maxMemoryKiB &&
		p.Threads >= 1 && p.Threads <= maxThreads
}

// Sealed is the persistable output of Encrypt.
type Sealed struct {
	Salt       []byte
	Ciphertext []byte
}

// Vault encrypts and decrypts private keys.
type Vault struct {
	params Params
	rand   io.Reader
}

// Option configures a Vault.
type Option func(*Vault)

// WithParams sets the KDF cost used by Encrypt.
func WithParams(p Params) Option {
	return func(v *Vault) { v.params = p }
}

// WithRand replaces the salt and nonce source.
func WithRand(r io.Reader) Option {
	return func(v *Vault) { v.rand = r }
}

// New returns a Vault with default parameters.
func New(opts ...Option) *Vault {
	v := &Vault{params: DefaultParams()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Params returns the KDF cost used for new records.
func (v *Vault) Params() Params {
	return v.params
}

// Encrypt seals privateKey under password with a fresh salt and nonce.
func (v *Vault) Encrypt(privateKey, password []byte) (*Sealed, error) {
	if len(privateKey) == 0 {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": "private key"})
	}
	if len(password) == 0 {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": "password"})
	}
	if !v.params.Valid() {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": "kdf parameters"})
	}

	salt, err := v.randomBytes(SaltSize)
	if err != nil {
		return nil, wardenerr.Wrap(err, "generating salt")
	}
	nonce, err := v.randomBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, wardenerr.Wrap(err, "generating nonce")
	}

	header := encodeHeader(v.params)

	key := deriveKey(password, salt, v.params)
	defer wardencrypto.Wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, wardenerr.Wrap(err, "initializing cipher")
	}

	out := make([]byte, 0, headerSize+len(nonce)+len(privateKey)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, privateKey, header)

	return &Sealed{Salt: salt, Ciphertext: out}, nil
}

// Decrypt opens a record sealed by Encrypt. Every failure, whether a wrong
// password or a damaged record, is reported as ErrWrongPassword.
func (v *Vault) Decrypt(ciphertext, salt, password []byte) (*wardencrypto.SecureBytes, error) {
	params, ok := decodeHeader(ciphertext)
	if !ok || len(salt) != SaltSize {
		// Still pay for one KDF run so a broken record costs what a wrong
		// password costs.
		p := v.params
		if !p.Valid() {
			p = Params{Time: 1, MemoryKiB: 64, Threads: 1}
		}
		wardencrypto.Wipe(deriveKey(password, make([]byte, SaltSize), p))
		return nil, wardenerr.ErrWrongPassword
	}

	key := deriveKey(password, salt, params)
	defer wardencrypto.Wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, wardenerr.ErrWrongPassword
	}

	header := ciphertext[:headerSize]
	nonce := ciphertext[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	box := ciphertext[headerSize+chacha20poly1305.NonceSizeX:]

	plain, err := aead.Open(nil, nonce, box, header)
	if err != nil {
		return nil, wardenerr.ErrWrongPassword
	}
	defer wardencrypto.Wipe(plain)

	return wardencrypto.SecureBytesFromSlice(plain)
}

func (v *Vault) randomBytes(n int) ([]byte, error) {
	if v.rand == nil {
		return wardencrypto.RandomBytes(n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(v.rand, b); err != nil {
		return nil, err
	}
	return b, nil
}

func deriveKey(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, keySize)
}

func encodeHeader(p Params) []byte {
	h := make([]byte, headerSize)
	h[0] = formatVersion
	binary.BigEndian.PutUint32(h[1:5], p.Time)
	binary.BigEndian.PutUint32(h[5:9], p.MemoryKiB)
	h[9] = p.Threads
	return h
}

func decodeHeader(ciphertext []byte) (Params, bool) {
	minLen := headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(ciphertext) < minLen || ciphertext[0] != formatVersion {
		return Params{}, false
	}
	p := Params{
		Time:      binary.BigEndian.Uint32(ciphertext[1:5]),
		MemoryKiB: binary.BigEndian.Uint32(ciphertext[5:9]),
		Threads:   ciphertext[9],
	}
	return p, p.Valid()
}
