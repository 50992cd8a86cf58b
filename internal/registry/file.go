package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mrz1836/warden/internal/fileutil"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// walletFileExtension is the extension for wallet record files.
	walletFileExtension = ".wallet"

	// walletFilePermissions is the permission mode for wallet record files.
	walletFilePermissions = 0o600

	// maxRecordSize bounds how much of a record file is read.
	maxRecordSize = 64 << 10
)

// FileStore keeps one JSON file per wallet under <home>/wallets.
type FileStore struct {
	dir    string
	logger LogWriter
	mu     sync.Mutex
}

// NewFileStore creates a store rooted at home. The wallets directory is
// created on first write.
func NewFileStore(home string, logger LogWriter) *FileStore {
	return &FileStore{dir: filepath.Join(home, "wallets"), logger: logger}
}

// Dir returns the directory holding the record files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.walletPath(e.Address)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return wardenerr.WithDetails(wardenerr.ErrWalletExists, map[string]string{"address": e.Address})
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking wallet existence: %w", err)
	}

	if err := fileutil.EnsurePrivateDir(s.dir); err != nil {
		return fmt.Errorf("creating wallet directory: %w", err)
	}
	if err := s.write(path, e); err != nil {
		return err
	}
	s.debug("registry: created %s (%s)", e.Address, e.Curve)
	return nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, address string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.walletPath(address)
	if err != nil {
		return nil, err
	}
	return s.read(path, address)
}

// List implements Store. Unreadable files are skipped and logged.
func (s *FileStore) List(ctx context.Context) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []*Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet directory: %w", err)
	}

	entries := make([]*Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, walletFileExtension) {
			continue
		}
		address := strings.TrimSuffix(name, walletFileExtension)
		e, err := s.read(filepath.Join(s.dir, name), address)
		if err != nil {
			s.logError("registry: skipping %s: %s", name, wardenerr.Code(err))
			continue
		}
		entries = append(entries, e)
	}

	sortEntries(entries)
	return entries, nil
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.walletPath(e.Address)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return notFound(e.Address)
	}
	return s.write(path, e)
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.walletPath(address)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(address)
		}
		return fmt.Errorf("removing wallet file: %w", err)
	}
	s.debug("registry: deleted %s", address)
	return nil
}

func (s *FileStore) read(path, address string) (*Entry, error) {
	data, err := fileutil.ReadLimited(path, maxRecordSize)
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(address)
	}
	if err != nil {
		return nil, fmt.Errorf("reading wallet file: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidInput, "parsing wallet file")
	}
	if err := e.Validate(); err != nil {
		return nil, wardenerr.Wrap(err, "wallet file %s", filepath.Base(path))
	}
	return &e, nil
}

func (s *FileStore) write(path string, e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling wallet: %w", err)
	}
	if err := fileutil.WriteAtomic(path, data, walletFilePermissions); err != nil {
		return fmt.Errorf("writing wallet file: %w", err)
	}
	return nil
}

// walletPath maps an address to its file. NormalizeAddress limits the name
// to hex characters, which rules out traversal.
func (s *FileStore) walletPath(address string) (string, error) {
	key, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+walletFileExtension), nil
}

func (s *FileStore) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}

func (s *FileStore) logError(format string, args ...any) {
	if s.logger != nil {
		s.logger.Error(format, args...)
	}
}

func notFound(address string) error {
	return wardenerr.WithDetails(wardenerr.ErrWalletNotFound, map[string]string{"address": address})
}
