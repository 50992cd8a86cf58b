// Package backup exports wallet records to portable files and restores them.
//
// A backup holds the sealed registry record, wrapped once more in an age
// file under the wallet password. The private key inside stays sealed by the
// vault; restoring never needs the seed phrase.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mrz1836/warden/internal/keys"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Backup errors.
var (
	// ErrBackupNotFound indicates the backup file was not found.
	ErrBackupNotFound = &wardenerr.WardenError{
		Code:     "BACKUP_NOT_FOUND",
		Message:  "backup file not found",
		ExitCode: wardenerr.ExitNotFound,
	}

	// ErrBackupCorrupted indicates the backup checksum failed.
	ErrBackupCorrupted = &wardenerr.WardenError{
		Code:     "BACKUP_CORRUPTED",
		Message:  "backup corrupted: checksum mismatch",
		ExitCode: wardenerr.ExitGeneral,
	}

	// ErrInvalidFormat indicates the backup format is invalid.
	ErrInvalidFormat = &wardenerr.WardenError{
		Code:     "BACKUP_INVALID",
		Message:  "invalid backup format",
		ExitCode: wardenerr.ExitInput,
	}
)

// Version is the current backup format version.
const Version = 1

// encryptionMethod names the two layers: age outside, the vault inside.
const encryptionMethod = "age-scrypt+argon2id-chacha20poly1305"

// Backup is one exported wallet.
type Backup struct {
	Version  int      `json:"version"`
	Manifest Manifest `json:"manifest"`

	// EncryptedData is the age-encrypted registry record.
	EncryptedData []byte `json:"encrypted_data"`

	// Checksum is the hex SHA-256 of EncryptedData.
	Checksum string `json:"checksum"`
}

// Manifest describes a backup without decrypting it.
type Manifest struct {
	Address          string     `json:"address"`
	Curve            keys.Curve `json:"curve"`
	Nickname         string     `json:"nickname,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	EncryptionMethod string     `json:"encryption_method"`
}

// NewManifest creates the manifest for a wallet backed up at now.
func NewManifest(address string, curve keys.Curve, nickname string, now time.Time) Manifest {
	return Manifest{
		Address:          address,
		Curve:            curve,
		Nickname:         nickname,
		CreatedAt:        now.UTC(),
		EncryptionMethod: encryptionMethod,
	}
}

// CalculateChecksum computes the SHA-256 checksum of data.
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum checks data against the expected checksum.
func VerifyChecksum(data []byte, expected string) error {
	if CalculateChecksum(data) != expected {
		return ErrBackupCorrupted
	}
	return nil
}

// NewBackup creates a backup with the given manifest and encrypted data.
func NewBackup(manifest Manifest, encryptedData []byte) *Backup {
	return &Backup{
		Version:       Version,
		Manifest:      manifest,
		EncryptedData: encryptedData,
		Checksum:      CalculateChecksum(encryptedData),
	}
}

// Validate checks the backup for consistency.
func (b *Backup) Validate() error {
	switch {
	case b.Version != Version:
		return wardenerr.WithDetails(ErrInvalidFormat, map[string]string{"field": "version"})
	case b.Manifest.Address == "":
		return wardenerr.WithDetails(ErrInvalidFormat, map[string]string{"field": "address"})
	case len(b.EncryptedData) == 0:
		return wardenerr.WithDetails(ErrInvalidFormat, map[string]string{"field": "encrypted_data"})
	}
	return VerifyChecksum(b.EncryptedData, b.Checksum)
}
