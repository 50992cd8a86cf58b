package siwe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/keys"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Defaults for MemoryIssuer.
const (
	DefaultNonceTTL = 5 * time.Minute
	DefaultTokenTTL = 24 * time.Hour
)

// MemoryIssuerOptions configures a MemoryIssuer.
type MemoryIssuerOptions struct {
	Clock    clock.Clock
	NonceTTL time.Duration
	TokenTTL time.Duration
	// Domain, when set, must match the challenge domain.
	Domain string
}

// MemoryIssuer is an in-process issuer: single-use nonces bound to an
// address and expiry, EIP-191 recovery, and an account/link table. It backs
// tests and offline use; it is not a server.
type MemoryIssuer struct {
	mu       sync.Mutex
	clock    clock.Clock
	nonceTTL time.Duration
	tokenTTL time.Duration
	domain   string

	nonces    map[string]pendingNonce
	tokens    map[string]grant
	accounts  map[string][]string // account id -> linked addresses
	addresses map[string]string   // lowercase address -> account id
	nextID    int
}

type pendingNonce struct {
	address   string
	expiresAt time.Time
}

type grant struct {
	accountID string
	expiresAt time.Time
}

// NewMemoryIssuer creates an empty issuer.
func NewMemoryIssuer(opts MemoryIssuerOptions) *MemoryIssuer {
	m := &MemoryIssuer{
		clock:     opts.Clock,
		nonceTTL:  opts.NonceTTL,
		tokenTTL:  opts.TokenTTL,
		domain:    opts.Domain,
		nonces:    make(map[string]pendingNonce),
		tokens:    make(map[string]grant),
		accounts:  make(map[string][]string),
		addresses: make(map[string]string),
	}
	if m.clock == nil {
		m.clock = clock.NewDefaultClock()
	}
	if m.nonceTTL <= 0 {
		m.nonceTTL = DefaultNonceTTL
	}
	if m.tokenTTL <= 0 {
		m.tokenTTL = DefaultTokenTTL
	}
	return m
}

// Nonce implements Issuer.
func (m *MemoryIssuer) Nonce(ctx context.Context, address string) (*Nonce, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !keys.IsHexAddress(address) {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidAddress, map[string]string{"address": address})
	}
	value, err := randomHex(12)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := &Nonce{Value: value, ExpiresAt: m.clock.Now().Add(m.nonceTTL).UTC().Truncate(time.Second)}
	m.nonces[value] = pendingNonce{address: address, expiresAt: n.ExpiresAt}
	return n, nil
}

// Verify implements Issuer.
func (m *MemoryIssuer) Verify(ctx context.Context, msg SignedMessage) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.consume(msg, PurposeLogin)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(c.Address)
	accountID, ok := m.addresses[key]
	if !ok {
		m.nextID++
		accountID = fmt.Sprintf("acct-%d", m.nextID)
		m.addresses[key] = accountID
		m.accounts[accountID] = []string{c.Address}
	}

	token, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	expires := m.clock.Now().Add(m.tokenTTL)
	m.tokens[token] = grant{accountID: accountID, expiresAt: expires}

	return &VerifyResult{
		Token:           token,
		AccountID:       accountID,
		Address:         c.Address,
		LinkedAddresses: slices.Clone(m.accounts[accountID]),
		ExpiresAt:       expires,
	}, nil
}

// Link implements Issuer.
func (m *MemoryIssuer) Link(ctx context.Context, cred *credential.Credential, msg SignedMessage) (*LinkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cred == nil {
		return nil, wardenerr.ErrNotAuthenticated
	}
	g, ok := m.tokens[cred.Token]
	if !ok || !m.clock.Now().Before(g.expiresAt) {
		return nil, wardenerr.ErrNotAuthenticated
	}

	c, err := m.consume(msg, PurposeLink)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(c.Address)
	if owner, taken := m.addresses[key]; taken && owner != g.accountID {
		return nil, wardenerr.WithDetails(wardenerr.ErrAddressAlreadyLinked, map[string]string{"address": c.Address})
	}
	if _, taken := m.addresses[key]; !taken {
		m.addresses[key] = g.accountID
		m.accounts[g.accountID] = append(m.accounts[g.accountID], c.Address)
	}
	return &LinkResult{LinkedAddresses: slices.Clone(m.accounts[g.accountID])}, nil
}

// consume parses msg, burns its nonce and checks binding, expiry and
// signature. The nonce is gone even when a later check fails.
func (m *MemoryIssuer) consume(msg SignedMessage, purpose Purpose) (*Challenge, error) {
	c, err := ParseMessage(msg.Message)
	if err != nil {
		return nil, wardenerr.WithCause(wardenerr.ErrNonceRejected, err)
	}
	pending, ok := m.nonces[c.Nonce]
	if !ok {
		return nil, wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"nonce": "unknown or used"})
	}
	delete(m.nonces, c.Nonce)

	now := m.clock.Now()
	switch {
	case c.Purpose != purpose:
		return nil, wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"purpose": string(c.Purpose)})
	case !strings.EqualFold(pending.address, c.Address):
		return nil, wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"nonce": "address mismatch"})
	case m.domain != "" && c.Domain != m.domain:
		return nil, wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"domain": c.Domain})
	case !now.Before(pending.expiresAt) || c.Expired(now):
		return nil, wardenerr.ErrChallengeExpired
	}
	if err := VerifyPersonalSignature(msg.Message, msg.Signature, c.Address); err != nil {
		return nil, err
	}
	return c, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", wardenerr.Wrap(err, "generating random value")
	}
	return hex.EncodeToString(buf), nil
}
