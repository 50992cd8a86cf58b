package tx

import (
	"context"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/session"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// LogWriter is the logging surface the signer needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Signer signs transactions with keys borrowed from a session.
type Signer struct {
	clock  clock.Clock
	logger LogWriter
}

// NewSigner creates a Signer. A nil clock uses the wall clock.
func NewSigner(c clock.Clock, logger LogWriter) *Signer {
	if c == nil {
		c = clock.NewDefaultClock()
	}
	return &Signer{clock: c, logger: logger}
}

// Sign signs u with the wallet at address. The wallet must already be
// Unlocked in keySource; a Locked wallet gives ErrWalletLocked. The key is
// only borrowed for the call. Signing is never retried.
func (s *Signer) Sign(ctx context.Context, u *Unsigned, address string, keySource session.KeySource) (signed *Signed, err error) {
	defer func() { metrics.Global.RecordSign(err) }()

	timestamp := uint64(s.clock.Now().UnixMicro()) //nolint:gosec // wall clock is after 1970
	payload, err := u.SignBytes(timestamp)
	if err != nil {
		return nil, err
	}

	err = keySource.WithKey(ctx, address, func(k session.Key) error {
		signer, err := keys.SignerFor(k.Curve)
		if err != nil {
			return err
		}
		sig, err := signer.Sign(k.PrivateKey, payload)
		if err != nil {
			return err
		}
		signed = &Signed{
			Unsigned: *u,
			Signature: Signature{
				Curve:     k.Curve,
				PublicKey: k.PublicKey,
				Signature: sig,
			},
			Timestamp: timestamp,
		}
		return nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("tx: sign %s with %s failed: %s", u.Type(), address, wardenerr.Code(err))
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Debug("tx: signed %s with %s (%s)", u.Type(), address, signed.Signature.Curve)
	}
	return signed, nil
}

// Verify recomputes the canonical bytes and checks the signature under the
// recorded curve.
func Verify(s *Signed) error {
	signer, err := keys.SignerFor(s.Signature.Curve)
	if err != nil {
		return err
	}
	payload, err := s.SignBytes(s.Timestamp)
	if err != nil {
		return err
	}
	if !signer.Verify(s.Signature.PublicKey, payload, s.Signature.Signature) {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "signature"})
	}
	return nil
}

// SignerAddress returns the address of the key that produced s.
func SignerAddress(s *Signed) (string, error) {
	return keys.AddressFromPublicKey(s.Signature.Curve, s.Signature.PublicKey)
}
