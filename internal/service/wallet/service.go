// Package wallet orchestrates the registry, vault, session manager, signer and
// broadcaster behind the wallet operations the CLI exposes.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/mnemonic"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/tx"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Service provides wallet operations without CLI dependencies.
type Service struct {
	registry    registry.Store
	vault       KeyVault
	sessions    SessionManager
	signer      TxSigner
	broadcaster Broadcaster
	clock       clock.Clock
	logger      LogWriter
	records     *recordGuard
}

// errUnchanged tells mutate the record needs no write.
var errUnchanged = errors.New("record unchanged")

// Config contains dependencies for creating a wallet service.
type Config struct {
	Registry    registry.Store
	Vault       KeyVault
	Sessions    SessionManager
	Signer      TxSigner
	Broadcaster Broadcaster // optional; SignAndBroadcast needs it
	Clock       clock.Clock
	Logger      LogWriter
}

// NewService creates a new wallet service instance.
func NewService(cfg *Config) *Service {
	s := &Service{
		registry:    cfg.Registry,
		vault:       cfg.Vault,
		sessions:    cfg.Sessions,
		signer:      cfg.Signer,
		broadcaster: cfg.Broadcaster,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		records:     newRecordGuard(),
	}
	if s.clock == nil {
		s.clock = clock.NewDefaultClock()
	}
	return s
}

// Create imports a wallet from req.Phrase. The derived private key is sealed
// under req.Password and wiped before Create returns.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*registry.Entry, error) {
	if len(req.Password) == 0 {
		return nil, wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": "password"}),
			"a password is required to encrypt the private key",
		)
	}
	phrase, err := mnemonic.Parse(req.Phrase)
	if err != nil {
		return nil, err
	}

	km, err := keys.Derive(phrase.Reveal(), req.Curve)
	if err != nil {
		return nil, err
	}
	defer km.Zero()

	sealed, err := s.vault.Encrypt(km.PrivateKey.Bytes(), req.Password)
	if err != nil {
		return nil, err
	}
	entry, err := registry.NewEntry(km, sealed, req.Nickname, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.registry.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.debug("wallet: created %s (%s)", entry.Address, entry.Curve)

	if req.Activate {
		if err := s.SetActive(ctx, entry.Address); err != nil {
			return nil, err
		}
		entry.Active = true
	}
	return entry, nil
}

// Generate creates a wallet from a fresh phrase of req.Words words. The
// phrase is returned once and never stored.
func (s *Service) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	words := req.Words
	if words == 0 {
		words = mnemonic.Words12
	}
	phrase, err := mnemonic.Generate(words)
	if err != nil {
		return nil, err
	}
	entry, err := s.Create(ctx, &CreateRequest{
		Phrase:   phrase.Reveal(),
		Curve:    req.Curve,
		Password: req.Password,
		Nickname: req.Nickname,
		Activate: req.Activate,
	})
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Entry: entry, Phrase: phrase}, nil
}

// List returns every wallet, oldest first.
func (s *Service) List(ctx context.Context) ([]*Summary, error) {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.summarize(e))
	}
	return out, nil
}

// Get returns the wallet at address.
func (s *Service) Get(ctx context.Context, address string) (*Summary, error) {
	e, err := s.registry.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	return s.summarize(e), nil
}

// Resolve finds a wallet by address or nickname. An empty ref selects the
// active wallet.
func (s *Service) Resolve(ctx context.Context, ref string) (*Summary, error) {
	ref = strings.TrimSpace(ref)
	if ref != "" {
		if _, err := registry.NormalizeAddress(ref); err == nil {
			return s.Get(ctx, ref)
		}
	}

	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if ref == "" && e.Active {
			return s.summarize(e), nil
		}
		if ref != "" && strings.EqualFold(e.Nickname, ref) {
			return s.summarize(e), nil
		}
	}

	if ref == "" {
		return nil, wardenerr.WithSuggestion(wardenerr.ErrWalletNotFound,
			"no active wallet; name one with --wallet or run: warden wallet activate <address>")
	}
	return nil, wardenerr.WithSuggestion(
		wardenerr.WithDetails(wardenerr.ErrWalletNotFound, map[string]string{"wallet": ref}),
		"list wallets with: warden wallet list",
	)
}

// Rename replaces the wallet's nickname.
func (s *Service) Rename(ctx context.Context, address, nickname string) (*Summary, error) {
	e, err := s.mutate(ctx, address, func(e *registry.Entry) error {
		e.Nickname = registry.SanitizeNickname(nickname)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.summarize(e), nil
}

// SetActive marks address as the active wallet and clears the flag on every
// other record.
func (s *Service) SetActive(ctx context.Context, address string) error {
	target, err := registry.NormalizeAddress(address)
	if err != nil {
		return err
	}
	if _, err := s.registry.Get(ctx, address); err != nil {
		return err
	}

	entries, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		want := e.Key() == target
		if e.Active == want {
			continue
		}
		_, err := s.mutate(ctx, e.Address, func(fresh *registry.Entry) error {
			if fresh.Active == want {
				return errUnchanged
			}
			fresh.Active = want
			return nil
		})
		if err != nil {
			return err
		}
	}
	s.debug("wallet: %s is active", address)
	return nil
}

// SetFrozen sets the registry freeze flag. Freezing locks the wallet; a
// frozen wallet refuses Unlock and ChangePassword.
func (s *Service) SetFrozen(ctx context.Context, address string, frozen bool) error {
	if frozen {
		if _, err := s.registry.Get(ctx, address); err != nil {
			return err
		}
		if err := s.sessions.Lock(address); err != nil {
			return err
		}
	}
	_, err := s.mutate(ctx, address, func(e *registry.Entry) error {
		if e.Locked == frozen {
			return errUnchanged
		}
		e.Locked = frozen
		return nil
	})
	return err
}

// Delete locks the wallet and removes its record.
func (s *Service) Delete(ctx context.Context, address string) error {
	if err := s.sessions.Lock(address); err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, address); err != nil {
		return err
	}
	s.debug("wallet: deleted %s", address)
	return nil
}

// ChangePassword opens the key with oldPassword and reseals it under
// newPassword with a fresh salt. The session, if any, is left as is. The
// record and session guards are held throughout; other writers and key users
// of the wallet get ErrWalletBusy meanwhile.
func (s *Service) ChangePassword(ctx context.Context, address string, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"field": "password"})
	}
	release, err := s.records.claim(address)
	if err != nil {
		return err
	}
	defer release()

	return s.sessions.Exclusive(ctx, address, func() error {
		return s.reseal(ctx, address, oldPassword, newPassword)
	})
}

func (s *Service) reseal(ctx context.Context, address string, oldPassword, newPassword []byte) error {
	e, err := s.registry.Get(ctx, address)
	if err != nil {
		return err
	}
	if e.Locked {
		return frozenError(e.Address)
	}

	secret, err := s.vault.Decrypt(e.Ciphertext, e.Salt, oldPassword)
	if err != nil {
		return wardenerr.ErrWrongPassword
	}
	defer secret.Destroy()

	signer, err := keys.SignerFor(e.Curve)
	if err != nil {
		return err
	}
	pub, err := signer.PublicKey(secret.Bytes())
	if err != nil || !bytes.Equal(pub, e.PublicKey) {
		return wardenerr.ErrWrongPassword
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := s.vault.Encrypt(secret.Bytes(), newPassword)
	if err != nil {
		return err
	}
	e.Reseal(sealed)
	if err := s.registry.Update(ctx, e); err != nil {
		return err
	}
	s.debug("wallet: resealed %s", e.Address)
	return nil
}

// Unlock unlocks the wallet and records the time on its record.
func (s *Service) Unlock(ctx context.Context, address string, password []byte) error {
	if err := s.sessions.Unlock(ctx, address, password); err != nil {
		return err
	}
	s.touch(ctx, address)
	return nil
}

// Lock locks the wallet. Locking a Locked wallet is a no-op.
func (s *Service) Lock(address string) error {
	return s.sessions.Lock(address)
}

// LockAll locks every wallet and returns how many were Unlocked.
func (s *Service) LockAll() int {
	return s.sessions.LockAll()
}

// Sign signs u with the wallet at address, which must be Unlocked.
func (s *Service) Sign(ctx context.Context, address string, u *tx.Unsigned) (*tx.Signed, error) {
	if u == nil {
		return nil, wardenerr.ErrInvalidTransaction
	}
	signed, err := s.signer.Sign(ctx, u, address, s.sessions)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, address)
	return signed, nil
}

// SignAndBroadcast signs u and submits it. The signature is produced once;
// only the submission may be retried.
func (s *Service) SignAndBroadcast(ctx context.Context, address string, u *tx.Unsigned) (*BroadcastResult, error) {
	if s.broadcaster == nil {
		return nil, wardenerr.WithSuggestion(wardenerr.ErrNotImplemented,
			"no broadcast endpoint configured; set network.broadcast_url")
	}
	signed, err := s.Sign(ctx, address, u)
	if err != nil {
		return nil, err
	}
	receipt, err := s.broadcaster.Submit(ctx, signed)
	if err != nil {
		return &BroadcastResult{Signed: signed}, err
	}
	return &BroadcastResult{Signed: signed, Receipt: receipt}, nil
}

func (s *Service) summarize(e *registry.Entry) *Summary {
	return &Summary{
		Address:    e.Address,
		Curve:      e.Curve,
		PublicKey:  fmt.Sprintf("%x", []byte(e.PublicKey)),
		Nickname:   e.Nickname,
		CreatedAt:  e.CreatedAt,
		LastUsedAt: e.LastUsedAt,
		Active:     e.Active,
		Frozen:     e.Locked,
		Unlocked:   s.sessions != nil && s.sessions.IsUnlocked(e.Address),
	}
}

// touch updates LastUsedAt. A failed write is logged, not returned: the
// operation it follows already succeeded. A record another writer holds is
// skipped.
func (s *Service) touch(ctx context.Context, address string) {
	now := s.clock.Now().UTC()
	_, err := s.mutate(ctx, address, func(e *registry.Entry) error {
		e.LastUsedAt = now
		return nil
	})
	switch {
	case wardenerr.Is(err, wardenerr.ErrWalletBusy):
		s.debug("wallet: touch %s skipped: record busy", address)
	case err != nil:
		s.logError("wallet: touch %s: %s", address, wardenerr.Code(err))
	}
}

// mutate re-reads the record at address under the record guard, applies fn
// and writes the result back. fn may return errUnchanged to skip the write.
func (s *Service) mutate(ctx context.Context, address string, fn func(e *registry.Entry) error) (*registry.Entry, error) {
	release, err := s.records.claim(address)
	if err != nil {
		return nil, err
	}
	defer release()

	e, err := s.registry.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	switch err := fn(e); {
	case errors.Is(err, errUnchanged):
		return e, nil
	case err != nil:
		return nil, err
	}
	if err := s.registry.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func frozenError(address string) error {
	return wardenerr.WithSuggestion(
		wardenerr.WithDetails(wardenerr.ErrPermission, map[string]string{"address": address}),
		"the wallet is frozen; run: warden wallet freeze --off "+address,
	)
}

func (s *Service) debug(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}

func (s *Service) logError(format string, args ...any) {
	if s.logger != nil {
		s.logger.Error(format, args...)
	}
}
