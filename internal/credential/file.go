package credential

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// credentialFileName is the file under the warden home.
	credentialFileName = "credential.age"

	// credentialFilePermissions is the permission mode for the credential file.
	credentialFilePermissions = 0o600

	// storeKeyLength is the length of the random per-save key in bytes.
	storeKeyLength = 32

	// keyringUser is the keyring account holding the store key.
	keyringUser = "credential"

	// maxCredentialSize bounds how much of the file is read.
	maxCredentialSize = 64 << 10
)

// FileStore keeps the credential age-encrypted on disk. The passphrase is a
// random key held in the OS keyring and replaced on every save.
type FileStore struct {
	path    string
	keyring Keyring
	mu      sync.Mutex
}

// NewFileStore creates a store under home. If kr is nil the OS keyring is
// used. Returns ErrKeyringUnavailable when the keyring fails the probe.
func NewFileStore(home string, kr Keyring) (*FileStore, error) {
	if kr == nil {
		kr = NewOSKeyring()
	}
	if !Probe(kr) {
		return nil, ErrKeyringUnavailable
	}
	return &FileStore{path: filepath.Join(home, credentialFileName), keyring: kr}, nil
}

// Path returns the credential file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, c *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.Token == "" {
		return wardenerr.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}
	defer wardencrypto.Wipe(plaintext)

	key, err := wardencrypto.RandomBytes(storeKeyLength)
	if err != nil {
		return fmt.Errorf("generating store key: %w", err)
	}
	defer wardencrypto.Wipe(key)

	sealed, err := wardencrypto.Seal(plaintext, hex.EncodeToString(key))
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}

	if err := s.keyring.Set(ServiceName, keyringUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		return wardenerr.WithCause(ErrKeyringUnavailable, err)
	}

	if err := fileutil.EnsurePrivateDir(filepath.Dir(s.path)); err != nil {
		_ = s.keyring.Delete(ServiceName, keyringUser)
		return fmt.Errorf("creating credential directory: %w", err)
	}
	if err := fileutil.WriteAtomic(s.path, sealed, credentialFilePermissions); err != nil {
		_ = s.keyring.Delete(ServiceName, keyringUser)
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}

// Load implements Store. A file that cannot be decrypted is removed along
// with its keyring entry.
func (s *FileStore) Load(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := fileutil.ReadLimited(s.path, maxCredentialSize)
	if errors.Is(err, os.ErrNotExist) {
		return nil, wardenerr.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	encodedKey, err := s.keyring.Get(ServiceName, keyringUser)
	if err != nil {
		// File without its key can never be opened again.
		_ = s.cleanup()
		return nil, wardenerr.ErrCredentialNotFound
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		_ = s.cleanup()
		return nil, ErrCredentialCorrupted
	}
	defer wardencrypto.Wipe(key)

	plain, err := wardencrypto.Open(data, hex.EncodeToString(key))
	if err != nil {
		_ = s.cleanup()
		return nil, ErrCredentialCorrupted
	}
	defer plain.Destroy()

	var c Credential
	if err := json.Unmarshal(plain.Bytes(), &c); err != nil {
		_ = s.cleanup()
		return nil, ErrCredentialCorrupted
	}
	return &c, nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanup()
}

// cleanup removes both the file and the keyring entry. Caller holds mu.
func (s *FileStore) cleanup() error {
	_ = s.keyring.Delete(ServiceName, keyringUser)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}
