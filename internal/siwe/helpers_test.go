package siwe_test

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/siwe"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	phraseA     = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	addressA    = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	testDomain  = "app.example.com"
	testURI     = "https://app.example.com/login"
	testChainID = 1
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// walletSigner is an attached signer backed by a throwaway ecdsa key.
type walletSigner struct {
	key *ecdsa.PrivateKey

	// decline makes SignMessage answer ErrUserCancelled.
	decline bool
	// block makes SignMessage wait until its context ends.
	block bool
	// beforeSign runs at the start of SignMessage.
	beforeSign func()

	signing  chan struct{}
	messages []string
	mu       sync.Mutex
	signs    atomic.Int32
}

func newWalletSigner(t *testing.T) *walletSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &walletSigner{key: key, signing: make(chan struct{}, 1)}
}

func (s *walletSigner) address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *walletSigner) Address(_ context.Context) (string, error) {
	return s.address(), nil
}

func (s *walletSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	s.signs.Add(1)
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	select {
	case s.signing <- struct{}{}:
	default:
	}
	if s.beforeSign != nil {
		s.beforeSign()
	}
	if s.decline {
		return nil, wardenerr.ErrUserCancelled
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *walletSigner) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

// eventSigner adds lifecycle events to walletSigner.
type eventSigner struct {
	*walletSigner
	events       chan siwe.Event
	unsubscribed atomic.Bool
}

func newEventSigner(t *testing.T) *eventSigner {
	t.Helper()
	w := newWalletSigner(t)
	w.block = true
	return &eventSigner{walletSigner: w, events: make(chan siwe.Event, 4)}
}

func (s *eventSigner) Subscribe() (<-chan siwe.Event, func()) {
	return s.events, func() { s.unsubscribed.Store(true) }
}

// countingIssuer records calls on top of a MemoryIssuer.
type countingIssuer struct {
	*siwe.MemoryIssuer
	nonces  atomic.Int32
	verifys atomic.Int32
	links   atomic.Int32
}

func (c *countingIssuer) Nonce(ctx context.Context, address string) (*siwe.Nonce, error) {
	c.nonces.Add(1)
	return c.MemoryIssuer.Nonce(ctx, address)
}

func (c *countingIssuer) Verify(ctx context.Context, msg siwe.SignedMessage) (*siwe.VerifyResult, error) {
	c.verifys.Add(1)
	return c.MemoryIssuer.Verify(ctx, msg)
}

func (c *countingIssuer) Link(ctx context.Context, cred *credential.Credential, msg siwe.SignedMessage) (*siwe.LinkResult, error) {
	c.links.Add(1)
	return c.MemoryIssuer.Link(ctx, cred, msg)
}

// hookStore runs one-shot hooks around Save.
type hookStore struct {
	*credential.MemoryStore

	mu         sync.Mutex
	beforeSave func()
	afterSave  func()
}

func (h *hookStore) take(hook *func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn := *hook
	*hook = nil
	return fn
}

func (h *hookStore) Save(ctx context.Context, c *credential.Credential) error {
	if fn := h.take(&h.beforeSave); fn != nil {
		fn()
	}
	err := h.MemoryStore.Save(ctx, c)
	if fn := h.take(&h.afterSave); fn != nil {
		fn()
	}
	return err
}

func (h *hookStore) onBeforeSave(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeSave = fn
}

func (h *hookStore) onAfterSave(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterSave = fn
}

type fixture struct {
	clock  *clock.TestClock
	issuer *countingIssuer
	store  *credential.MemoryStore
	hooks  *hookStore
	auth   *siwe.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tc := clock.NewTestClock(testTime)
	issuer := &countingIssuer{MemoryIssuer: siwe.NewMemoryIssuer(siwe.MemoryIssuerOptions{
		Clock:    tc,
		NonceTTL: 10 * time.Minute,
		TokenTTL: time.Hour,
		Domain:   testDomain,
	})}
	store := credential.NewMemoryStore()
	hooks := &hookStore{MemoryStore: store}
	auth := siwe.NewAuthenticator(issuer, hooks, siwe.Config{
		Domain:    testDomain,
		URI:       testURI,
		Statement: "Sign in to the launchpad.",
		ChainID:   testChainID,
		TTL:       5 * time.Minute,
	}, siwe.Options{Clock: tc})
	return &fixture{clock: tc, issuer: issuer, store: store, hooks: hooks, auth: auth}
}
