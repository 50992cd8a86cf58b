package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// Extension is the file extension for backups.
	Extension = ".warden"

	// filePerm is the permission mode for backup files.
	filePerm = 0o600

	// maxBackupSize bounds a backup file read from disk.
	maxBackupSize = 1 << 20
)

// KeyOpener opens a sealed key. vault.Vault satisfies it.
type KeyOpener interface {
	Decrypt(ciphertext, salt, password []byte) (*wardencrypto.SecureBytes, error)
}

// Service creates and restores backups in one directory.
type Service struct {
	dir      string
	registry registry.Store
	opener   KeyOpener
	clock    clock.Clock
}

// NewService creates a backup service writing to dir.
func NewService(dir string, reg registry.Store, opener KeyOpener, c clock.Clock) *Service {
	if c == nil {
		c = clock.NewDefaultClock()
	}
	return &Service{dir: dir, registry: reg, opener: opener, clock: c}
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

// Create writes a backup of the wallet at address. The password must open
// the wallet's key; it also encrypts the backup file.
func (s *Service) Create(ctx context.Context, address string, password []byte) (*Backup, string, error) {
	entry, err := s.registry.Get(ctx, address)
	if err != nil {
		return nil, "", err
	}
	if err := s.checkPassword(entry, password); err != nil {
		return nil, "", err
	}

	record := entry.Clone()
	record.Active = false
	data, err := json.Marshal(record)
	if err != nil {
		return nil, "", fmt.Errorf("serializing wallet record: %w", err)
	}
	encrypted, err := wardencrypto.Seal(data, string(password))
	if err != nil {
		return nil, "", fmt.Errorf("encrypting backup: %w", err)
	}

	now := s.clock.Now()
	b := NewBackup(NewManifest(entry.Address, entry.Curve, entry.Nickname, now), encrypted)

	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("serializing backup: %w", err)
	}
	if err := fileutil.EnsurePrivateDir(s.dir); err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("%s-%s%s", entry.Key(), now.UTC().Format("20060102-150405"), Extension)
	path := filepath.Join(s.dir, name)
	if err := fileutil.WriteAtomic(path, out, filePerm); err != nil {
		return nil, "", fmt.Errorf("writing backup: %w", err)
	}
	return b, path, nil
}

// Verify checks a backup file's structure and checksum without decrypting.
func (s *Service) Verify(path string) (*Manifest, error) {
	b, err := readBackup(path)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b.Manifest, nil
}

// Restore decrypts the backup at path and adds its record to the registry.
// A non-empty nickname replaces the stored one. The restored wallet is never
// made active.
func (s *Service) Restore(ctx context.Context, path string, password []byte, nickname string) (*registry.Entry, error) {
	b, err := readBackup(path)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	plain, err := wardencrypto.Open(b.EncryptedData, string(password))
	if err != nil {
		return nil, wardenerr.ErrWrongPassword
	}
	defer plain.Destroy()

	var entry registry.Entry
	if err := json.NewDecoder(bytes.NewReader(plain.Bytes())).Decode(&entry); err != nil {
		return nil, wardenerr.WithCause(ErrInvalidFormat, err)
	}
	if !strings.EqualFold(entry.Address, b.Manifest.Address) {
		return nil, wardenerr.WithDetails(ErrInvalidFormat, map[string]string{"field": "address"})
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkPassword(&entry, password); err != nil {
		return nil, err
	}

	if nickname != "" {
		entry.Nickname = registry.SanitizeNickname(nickname)
	}
	entry.Active = false
	entry.Locked = false
	if err := s.registry.Create(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the backup file names in the directory, newest first.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == Extension {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

// Path returns the path of a backup file in the directory.
func (s *Service) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// checkPassword opens the record's key and compares its public key.
func (s *Service) checkPassword(entry *registry.Entry, password []byte) error {
	secret, err := s.opener.Decrypt(entry.Ciphertext, entry.Salt, password)
	if err != nil {
		return wardenerr.ErrWrongPassword
	}
	defer secret.Destroy()

	signer, err := keys.SignerFor(entry.Curve)
	if err != nil {
		return err
	}
	pub, err := signer.PublicKey(secret.Bytes())
	if err != nil || !bytes.Equal(pub, entry.PublicKey) {
		return wardenerr.ErrWrongPassword
	}
	return nil
}

func readBackup(path string) (*Backup, error) {
	data, err := fileutil.ReadLimited(path, maxBackupSize)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, wardenerr.WithDetails(ErrBackupNotFound, map[string]string{"path": path})
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup file: %w", err)
	}

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, wardenerr.WithCause(ErrInvalidFormat, err)
	}
	return &b, nil
}
