// Package credential stores the session credential issued after a successful
// challenge-response login. The token is opaque and never inspected.
package credential

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// ServiceName is the keyring service under which the store key lives.
const ServiceName = "warden-credential"

// Credential errors.
var (
	// ErrKeyringUnavailable indicates the OS keyring is not available.
	ErrKeyringUnavailable = &wardenerr.WardenError{
		Code:       "KEYRING_UNAVAILABLE",
		Message:    "keyring unavailable",
		Suggestion: "set security.credential_store to memory on hosts without a keyring",
		ExitCode:   wardenerr.ExitGeneral,
	}

	// ErrCredentialCorrupted indicates the stored credential could not be read back.
	ErrCredentialCorrupted = &wardenerr.WardenError{
		Code:     "CREDENTIAL_CORRUPTED",
		Message:  "stored credential is corrupted",
		ExitCode: wardenerr.ExitGeneral,
	}
)

// Credential is the result of a successful login.
type Credential struct {
	Token           string    `json:"token"`
	Address         string    `json:"address"`
	AccountID       string    `json:"account_id"`
	LinkedAddresses []string  `json:"linked_addresses,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Valid reports whether the credential carries a token and is unexpired at now.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && now.Before(c.ExpiresAt)
}

// TTL returns the time left at now, or 0 once expired.
func (c *Credential) TTL(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// HasLinked reports whether address is bound to the account. The login
// address counts as linked.
func (c *Credential) HasLinked(address string) bool {
	if strings.EqualFold(c.Address, address) {
		return true
	}
	return slices.ContainsFunc(c.LinkedAddresses, func(a string) bool {
		return strings.EqualFold(a, address)
	})
}

// AddLinked records address as linked, ignoring duplicates.
func (c *Credential) AddLinked(address string) {
	if !c.HasLinked(address) {
		c.LinkedAddresses = append(c.LinkedAddresses, address)
	}
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	out := *c
	out.LinkedAddresses = slices.Clone(c.LinkedAddresses)
	return &out
}

// String never includes the token.
func (c *Credential) String() string {
	return fmt.Sprintf("credential(address=%s account=%s expires=%s)",
		c.Address, c.AccountID, c.ExpiresAt.Format(time.RFC3339))
}

// Store persists at most one credential.
type Store interface {
	// Load returns the stored credential or ErrCredentialNotFound.
	Load(ctx context.Context) (*Credential, error)

	// Save replaces the stored credential.
	Save(ctx context.Context, c *Credential) error

	// Clear removes the stored credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Keyring is secure key storage. The OS keychain in production, a mock in tests.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}
