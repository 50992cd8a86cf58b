package siwe

import (
	"context"
	"time"

	"github.com/mrz1836/warden/internal/credential"
)

// Nonce is a single-use value bound to one address until ExpiresAt.
type Nonce struct {
	Value     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// SignedMessage is a challenge text with its personal_sign signature.
type SignedMessage struct {
	Message   string `json:"message"`
	Signature []byte `json:"-"`
}

// VerifyResult is the issuer's answer to a successful login.
type VerifyResult struct {
	Token           string    `json:"token"`
	AccountID       string    `json:"accountId"`
	Address         string    `json:"address"`
	LinkedAddresses []string  `json:"linkedAddresses,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// LinkResult carries the account's linked addresses after a link.
type LinkResult struct {
	LinkedAddresses []string `json:"linkedAddresses"`
}

// Issuer hands out nonces and verifies signed challenges. Verify and Link
// consume the nonce whatever the outcome.
type Issuer interface {
	Nonce(ctx context.Context, address string) (*Nonce, error)
	Verify(ctx context.Context, msg SignedMessage) (*VerifyResult, error)
	Link(ctx context.Context, cred *credential.Credential, msg SignedMessage) (*LinkResult, error)
}
