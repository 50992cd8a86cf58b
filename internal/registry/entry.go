// Package registry persists encrypted wallet records. A record never holds a
// plaintext key: only the public key, the vault salt and the vault ciphertext.
package registry

import (
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mrz1836/go-sanitize"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/vault"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// CurrentVersion is the record format version written by this build.
	CurrentVersion = 1

	// MaxNicknameLength is the longest nickname kept, in runes.
	MaxNicknameLength = 64
)

var addressPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)

// HexBytes is a byte slice that travels as a hex string in JSON.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// Entry is one wallet record.
type Entry struct {
	Version    int        `json:"version"`
	Address    string     `json:"address"`
	Curve      keys.Curve `json:"curve"`
	PublicKey  HexBytes   `json:"public_key"`
	Salt       HexBytes   `json:"salt"`
	Ciphertext HexBytes   `json:"ciphertext"`
	Nickname   string     `json:"nickname,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt time.Time  `json:"last_used_at,omitzero"`

	// Active marks the wallet used when a command names none.
	Active bool `json:"active"`

	// Locked is an administrative freeze: unlock is refused while set.
	Locked bool `json:"locked"`
}

// NewEntry builds a record from derived key material and its sealed private key.
func NewEntry(km *keys.KeyMaterial, sealed *vault.Sealed, nickname string, now time.Time) (*Entry, error) {
	if km == nil || sealed == nil {
		return nil, wardenerr.ErrInvalidInput
	}
	e := &Entry{
		Version:    CurrentVersion,
		Address:    km.Address,
		Curve:      km.Curve,
		PublicKey:  append(HexBytes(nil), km.PublicKey...),
		Salt:       append(HexBytes(nil), sealed.Salt...),
		Ciphertext: append(HexBytes(nil), sealed.Ciphertext...),
		Nickname:   SanitizeNickname(nickname),
		CreatedAt:  now.UTC(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the record's structure. The address must be the one the
// public key produces on the record's curve.
func (e *Entry) Validate() error {
	invalid := func(field string) error {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": field})
	}

	if e.Version < 1 || e.Version > CurrentVersion {
		return invalid("version")
	}
	if !e.Curve.Valid() {
		return wardenerr.WithDetails(wardenerr.ErrUnsupportedCurve, map[string]string{"curve": string(e.Curve)})
	}
	if _, err := NormalizeAddress(e.Address); err != nil {
		return err
	}
	if len(e.PublicKey) == 0 {
		return invalid("public_key")
	}
	derived, err := keys.AddressFromPublicKey(e.Curve, e.PublicKey)
	if err != nil || derived != e.Address {
		return invalid("public_key")
	}
	if len(e.Salt) != vault.SaltSize {
		return invalid("salt")
	}
	if len(e.Ciphertext) == 0 {
		return invalid("ciphertext")
	}
	if utf8.RuneCountInString(e.Nickname) > MaxNicknameLength {
		return invalid("nickname")
	}
	return nil
}

// Reseal swaps in a new salt and ciphertext. They are always replaced together.
func (e *Entry) Reseal(s *vault.Sealed) {
	e.Salt = append(HexBytes(nil), s.Salt...)
	e.Ciphertext = append(HexBytes(nil), s.Ciphertext...)
}

// Sealed returns the vault inputs held by the record.
func (e *Entry) Sealed() *vault.Sealed {
	return &vault.Sealed{Salt: e.Salt, Ciphertext: e.Ciphertext}
}

// Key is the lookup key for the record.
func (e *Entry) Key() string {
	return strings.ToLower(e.Address)
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	c.PublicKey = append(HexBytes(nil), e.PublicKey...)
	c.Salt = append(HexBytes(nil), e.Salt...)
	c.Ciphertext = append(HexBytes(nil), e.Ciphertext...)
	return &c
}

// NormalizeAddress validates an address and returns its lookup key.
// Lookups are case-insensitive so EIP-55 and lowercase forms match.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		return "", wardenerr.WithDetails(wardenerr.ErrInvalidAddress, map[string]string{"address": address})
	}
	return strings.ToLower(address), nil
}

// SanitizeNickname strips line breaks and trims to MaxNicknameLength runes.
func SanitizeNickname(name string) string {
	name = strings.TrimSpace(sanitize.SingleLine(name))
	if utf8.RuneCountInString(name) > MaxNicknameLength {
		name = string([]rune(name)[:MaxNicknameLength])
	}
	return name
}
