package siwe

import (
	"context"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/session"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// ExternalSigner is an attached wallet that can prove control of an address.
// SignMessage returns ErrUserCancelled when the holder declines.
type ExternalSigner interface {
	Address(ctx context.Context) (string, error)
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

// EventKind classifies signer lifecycle events.
type EventKind int

// Signer events.
const (
	EventConnected EventKind = iota
	EventDisconnected
	EventChainChanged
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventChainChanged:
		return "chain_changed"
	}
	return "unknown"
}

// Event is a signer lifecycle notification.
type Event struct {
	Kind    EventKind
	ChainID uint64
}

// EventSource is implemented by signers that report lifecycle changes.
// Subscribe returns the event channel and a function that releases it.
type EventSource interface {
	Subscribe() (<-chan Event, func())
}

// SessionSigner signs challenges with an ethsecp256k1 wallet held by a
// session. The key is borrowed per call and never copied.
type SessionSigner struct {
	address string
	keys    session.KeySource
}

// NewSessionSigner returns a signer for the unlocked wallet at address.
func NewSessionSigner(address string, ks session.KeySource) *SessionSigner {
	return &SessionSigner{address: address, keys: ks}
}

// Address implements ExternalSigner.
func (s *SessionSigner) Address(_ context.Context) (string, error) {
	if !keys.IsHexAddress(s.address) {
		return "", wardenerr.WithDetails(wardenerr.ErrInvalidAddress, map[string]string{"address": s.address})
	}
	return keys.ChecksumAddress(s.address), nil
}

// SignMessage implements ExternalSigner with personal_sign semantics: the
// signature is over Keccak-256 of the EIP-191 framing and V is 27 or 28.
func (s *SessionSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	var sig []byte
	err := s.keys.WithKey(ctx, s.address, func(k session.Key) error {
		if k.Curve != keys.EthSecp256k1 {
			return wardenerr.WithDetails(wardenerr.ErrUnsupportedCurve, map[string]string{
				"curve": string(k.Curve),
			})
		}
		signer, err := keys.SignerFor(k.Curve)
		if err != nil {
			return err
		}
		sig, err = signer.Sign(k.PrivateKey, PersonalMessage(message))
		return err
	})
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
