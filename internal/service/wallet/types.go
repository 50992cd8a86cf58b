package wallet

import (
	"time"

	"github.com/mrz1836/warden/internal/broadcast"
	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/mnemonic"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/tx"
)

// CreateRequest imports a wallet from an existing seed phrase.
type CreateRequest struct {
	Phrase   string
	Curve    keys.Curve
	Password []byte
	Nickname string

	// Activate makes the new wallet the active one.
	Activate bool
}

// GenerateRequest creates a wallet from a fresh seed phrase.
type GenerateRequest struct {
	Words    int
	Curve    keys.Curve
	Password []byte
	Nickname string
	Activate bool
}

// GenerateResult carries the new record and its phrase. The phrase is only
// ever returned here; it is never stored.
type GenerateResult struct {
	Entry  *registry.Entry
	Phrase mnemonic.Phrase
}

// Summary is the public view of a wallet.
type Summary struct {
	Address    string     `json:"address"`
	Curve      keys.Curve `json:"curve"`
	PublicKey  string     `json:"public_key"`
	Nickname   string     `json:"nickname,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt time.Time  `json:"last_used_at,omitzero"`
	Active     bool       `json:"active"`
	Frozen     bool       `json:"frozen"`
	Unlocked   bool       `json:"unlocked"`
}

// BroadcastResult is a signed transaction and the endpoint's receipt.
type BroadcastResult struct {
	Signed  *tx.Signed         `json:"transaction"`
	Receipt *broadcast.Receipt `json:"receipt"`
}
