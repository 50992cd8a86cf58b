package siwe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/siwe"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// signedChallenge builds and signs a challenge for signer against issuer.
func signedChallenge(t *testing.T, f *fixture, s *walletSigner, purpose siwe.Purpose) (*siwe.Challenge, siwe.SignedMessage) {
	t.Helper()
	ctx := context.Background()
	n, err := f.issuer.Nonce(ctx, s.address())
	require.NoError(t, err)

	c := &siwe.Challenge{
		Purpose:        purpose,
		Domain:         testDomain,
		Address:        s.address(),
		URI:            testURI,
		Version:        siwe.MessageVersion,
		ChainID:        testChainID,
		Nonce:          n.Value,
		IssuedAt:       f.clock.Now(),
		ExpirationTime: f.clock.Now().Add(5 * time.Minute),
	}
	msg, err := c.Message()
	require.NoError(t, err)
	sig, err := s.SignMessage(ctx, msg)
	require.NoError(t, err)
	return c, siwe.SignedMessage{Message: msg, Signature: sig}
}

func TestRecoverAddress(t *testing.T) {
	t.Parallel()
	s := newWalletSigner(t)
	sig, err := s.SignMessage(context.Background(), "hello")
	require.NoError(t, err)

	addr, err := siwe.RecoverAddress("hello", sig)
	require.NoError(t, err)
	assert.Equal(t, s.address(), addr)

	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	addr, err = siwe.RecoverAddress("hello", raw)
	require.NoError(t, err)
	assert.Equal(t, s.address(), addr)

	_, err = siwe.RecoverAddress("hello", sig[:64])
	require.ErrorIs(t, err, wardenerr.ErrNonceRejected)

	require.NoError(t, siwe.VerifyPersonalSignature("hello", sig, s.address()))
	require.ErrorIs(t, siwe.VerifyPersonalSignature("hello!", sig, s.address()), wardenerr.ErrNonceRejected)
}

func TestSessionSigner(t *testing.T) {
	t.Parallel()
	km, err := keys.Derive(phraseA, keys.EthSecp256k1)
	require.NoError(t, err)
	src := keySourceFunc(func(_ context.Context, address string, fn func(session.Key) error) error {
		return fn(session.Key{Address: address, Curve: km.Curve, PublicKey: km.PublicKey, PrivateKey: km.PrivateKey.Bytes()})
	})

	signer := siwe.NewSessionSigner(addressA, src)
	addr, err := signer.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addressA, addr)

	sig, err := signer.SignMessage(context.Background(), "launchpad")
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
	require.NoError(t, siwe.VerifyPersonalSignature("launchpad", sig, addressA))
}

func TestSessionSigner_RejectsOtherCurves(t *testing.T) {
	t.Parallel()
	src := keySourceFunc(func(_ context.Context, address string, fn func(session.Key) error) error {
		return fn(session.Key{Address: address, Curve: keys.Ed25519, PrivateKey: make([]byte, 32)})
	})
	_, err := siwe.NewSessionSigner(addressA, src).SignMessage(context.Background(), "x")
	require.ErrorIs(t, err, wardenerr.ErrUnsupportedCurve)
}

func TestSessionSigner_Locked(t *testing.T) {
	t.Parallel()
	src := keySourceFunc(func(context.Context, string, func(session.Key) error) error {
		return wardenerr.ErrWalletLocked
	})
	_, err := siwe.NewSessionSigner(addressA, src).SignMessage(context.Background(), "x")
	require.ErrorIs(t, err, wardenerr.ErrWalletLocked)
}

func TestMemoryIssuer_VerifyCreatesAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := newWalletSigner(t)
	_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)

	res, err := f.issuer.Verify(context.Background(), sm)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.AccountID)
	assert.Equal(t, s.address(), res.Address)
	assert.Equal(t, []string{s.address()}, res.LinkedAddresses)
	assert.True(t, res.ExpiresAt.Equal(testTime.Add(time.Hour)))

	// A second login maps to the same account.
	_, sm = signedChallenge(t, f, s, siwe.PurposeLogin)
	again, err := f.issuer.Verify(context.Background(), sm)
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, again.AccountID)
	assert.NotEqual(t, res.Token, again.Token)
}

func TestMemoryIssuer_NonceIsSingleUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := newWalletSigner(t)
	_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)

	_, err := f.issuer.Verify(context.Background(), sm)
	require.NoError(t, err)
	_, err = f.issuer.Verify(context.Background(), sm)
	require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
}

func TestMemoryIssuer_BadSignatureBurnsNonce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := newWalletSigner(t)
	other := newWalletSigner(t)
	_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)

	forged := sm
	var err error
	forged.Signature, err = other.SignMessage(context.Background(), sm.Message)
	require.NoError(t, err)

	_, err = f.issuer.Verify(context.Background(), forged)
	require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	_, err = f.issuer.Verify(context.Background(), sm)
	require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
}

func TestMemoryIssuer_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := newWalletSigner(t)
	other := newWalletSigner(t)
	ctx := context.Background()

	t.Run("nonce bound to other address", func(t *testing.T) {
		n, err := f.issuer.Nonce(ctx, other.address())
		require.NoError(t, err)
		c := testChallenge()
		c.Address = s.address()
		c.Nonce = n.Value
		c.IssuedAt = f.clock.Now()
		msg, err := c.Message()
		require.NoError(t, err)
		sig, err := s.SignMessage(ctx, msg)
		require.NoError(t, err)
		_, err = f.issuer.Verify(ctx, siwe.SignedMessage{Message: msg, Signature: sig})
		require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	})

	t.Run("link challenge used for login", func(t *testing.T) {
		_, sm := signedChallenge(t, f, s, siwe.PurposeLink)
		_, err := f.issuer.Verify(ctx, sm)
		require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	})

	t.Run("wrong domain", func(t *testing.T) {
		n, err := f.issuer.Nonce(ctx, s.address())
		require.NoError(t, err)
		c := testChallenge()
		c.Domain = "evil.example.com"
		c.Address = s.address()
		c.Nonce = n.Value
		msg, err := c.Message()
		require.NoError(t, err)
		sig, err := s.SignMessage(ctx, msg)
		require.NoError(t, err)
		_, err = f.issuer.Verify(ctx, siwe.SignedMessage{Message: msg, Signature: sig})
		require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	})

	t.Run("garbage message", func(t *testing.T) {
		_, err := f.issuer.Verify(ctx, siwe.SignedMessage{Message: "hello", Signature: make([]byte, 65)})
		require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := f.issuer.Nonce(ctx, "0xabc")
		require.ErrorIs(t, err, wardenerr.ErrInvalidAddress)
	})
}

func TestMemoryIssuer_ExpiredNonce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := newWalletSigner(t)
	_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)

	f.clock.SetTime(testTime.Add(11 * time.Minute))
	_, err := f.issuer.Verify(context.Background(), sm)
	require.ErrorIs(t, err, wardenerr.ErrChallengeExpired)
}

func TestMemoryIssuer_Link(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	owner := newWalletSigner(t)
	extra := newWalletSigner(t)
	stranger := newWalletSigner(t)

	_, sm := signedChallenge(t, f, owner, siwe.PurposeLogin)
	res, err := f.issuer.Verify(ctx, sm)
	require.NoError(t, err)
	cred := &credential.Credential{Token: res.Token, AccountID: res.AccountID, ExpiresAt: res.ExpiresAt}

	_, sm = signedChallenge(t, f, extra, siwe.PurposeLink)
	linked, err := f.issuer.Link(ctx, cred, sm)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.address(), extra.address()}, linked.LinkedAddresses)

	// Linking the same address again is idempotent.
	_, sm = signedChallenge(t, f, extra, siwe.PurposeLink)
	linked, err = f.issuer.Link(ctx, cred, sm)
	require.NoError(t, err)
	assert.Len(t, linked.LinkedAddresses, 2)

	// An address owned by another account conflicts.
	_, sm = signedChallenge(t, f, stranger, siwe.PurposeLogin)
	_, err = f.issuer.Verify(ctx, sm)
	require.NoError(t, err)
	_, sm = signedChallenge(t, f, stranger, siwe.PurposeLink)
	_, err = f.issuer.Link(ctx, cred, sm)
	require.ErrorIs(t, err, wardenerr.ErrAddressAlreadyLinked)

	// Unknown or expired tokens are not authenticated.
	_, sm = signedChallenge(t, f, extra, siwe.PurposeLink)
	_, err = f.issuer.Link(ctx, &credential.Credential{Token: "nope"}, sm)
	require.ErrorIs(t, err, wardenerr.ErrNotAuthenticated)

	f.clock.SetTime(testTime.Add(2 * time.Hour))
	_, err = f.issuer.Link(ctx, cred, sm)
	require.ErrorIs(t, err, wardenerr.ErrNotAuthenticated)
}

type keySourceFunc func(ctx context.Context, address string, fn func(session.Key) error) error

func (f keySourceFunc) WithKey(ctx context.Context, address string, fn func(session.Key) error) error {
	return f(ctx, address, fn)
}
