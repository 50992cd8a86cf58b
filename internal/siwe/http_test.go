package siwe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/siwe"
	"github.com/mrz1836/warden/internal/transport"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// fakeIssuerAPI fronts a MemoryIssuer with the issuer handler, counting
// calls and failing the first nonceFails nonce requests.
type fakeIssuerAPI struct {
	next        http.Handler
	nonceFails  atomic.Int32
	nonceCalls  atomic.Int32
	verifyCalls atomic.Int32
}

func (f *fakeIssuerAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/nonce":
		f.nonceCalls.Add(1)
		if f.nonceFails.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	case "/auth/verify":
		f.verifyCalls.Add(1)
	}
	f.next.ServeHTTP(w, r)
}

func newHTTPFixture(t *testing.T) (*fakeIssuerAPI, *siwe.HTTPIssuer, *fixture) {
	t.Helper()
	f := newFixture(t)
	api := &fakeIssuerAPI{next: siwe.NewHandler(f.issuer.MemoryIssuer, nil)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	h, err := siwe.NewHTTPIssuer(srv.URL, &transport.ClientOptions{
		HTTPClient:  srv.Client(),
		RateLimiter: transport.NewRateLimiter(1000, 1000),
	})
	require.NoError(t, err)
	h.SetRetryConfig(transport.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return api, h, f
}

func TestHTTPIssuer_LoginAndLink(t *testing.T) {
	t.Parallel()
	api, h, f := newHTTPFixture(t)
	ctx := context.Background()
	store := credential.NewMemoryStore()
	auth := siwe.NewAuthenticator(h, store, siwe.Config{
		Domain: testDomain, URI: testURI, ChainID: testChainID,
	}, siwe.Options{Clock: f.clock})

	owner := newWalletSigner(t)
	cred, err := auth.Login(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner.address(), cred.Address)
	assert.NotEmpty(t, cred.Token)
	assert.Equal(t, int32(1), api.verifyCalls.Load())

	extra := newWalletSigner(t)
	cred, err = siwe.NewLinker(auth).Link(ctx, extra)
	require.NoError(t, err)
	assert.True(t, cred.HasLinked(extra.address()))
}

func TestHTTPIssuer_NonceRetried(t *testing.T) {
	t.Parallel()
	api, h, _ := newHTTPFixture(t)
	api.nonceFails.Store(2)

	n, err := h.Nonce(context.Background(), addressA)
	require.NoError(t, err)
	assert.NotEmpty(t, n.Value)
	assert.Equal(t, int32(3), api.nonceCalls.Load())
}

func TestHTTPIssuer_VerifyNotRetried(t *testing.T) {
	t.Parallel()
	api, h, f := newHTTPFixture(t)
	s := newWalletSigner(t)
	_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)

	_, err := h.Verify(context.Background(), sm)
	require.NoError(t, err)

	_, err = h.Verify(context.Background(), sm)
	require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	assert.Equal(t, int32(2), api.verifyCalls.Load())
}

func TestHTTPIssuer_ErrorMapping(t *testing.T) {
	t.Parallel()
	_, h, f := newHTTPFixture(t)
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		s := newWalletSigner(t)
		_, sm := signedChallenge(t, f, s, siwe.PurposeLogin)
		f.clock.SetTime(testTime.Add(11 * time.Minute))
		defer f.clock.SetTime(testTime)
		_, err := h.Verify(ctx, sm)
		require.ErrorIs(t, err, wardenerr.ErrChallengeExpired)
	})

	t.Run("bad token on link", func(t *testing.T) {
		s := newWalletSigner(t)
		_, sm := signedChallenge(t, f, s, siwe.PurposeLink)
		_, err := h.Link(ctx, &credential.Credential{Token: "bogus"}, sm)
		require.ErrorIs(t, err, wardenerr.ErrNotAuthenticated)
	})

	t.Run("no credential", func(t *testing.T) {
		_, err := h.Link(ctx, nil, siwe.SignedMessage{})
		require.ErrorIs(t, err, wardenerr.ErrNotAuthenticated)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := h.Nonce(ctx, "0xabc")
		require.ErrorIs(t, err, wardenerr.ErrNonceRejected)
	})
}

func TestNewHTTPIssuer_BadURL(t *testing.T) {
	t.Parallel()
	_, err := siwe.NewHTTPIssuer("not a url", nil)
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
}

func TestHandler_RejectsMalformedRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := httptest.NewServer(siwe.NewHandler(f.issuer, nil))
	t.Cleanup(srv.Close)
	client := srv.Client()

	tests := []struct {
		name   string
		path   string
		auth   string
		body   string
		status int
	}{
		{"verify garbage", "/auth/verify", "", "{", http.StatusBadRequest},
		{"verify bad hex", "/auth/verify", "", `{"message":"x","signature":"zz"}`, http.StatusBadRequest},
		{"verify bad message", "/auth/verify", "", `{"message":"x","signature":"0x00"}`, http.StatusForbidden},
		{"link without token", "/auth/link", "", `{}`, http.StatusUnauthorized},
		{"link bad token", "/auth/link", "Bearer nope", `{"message":"x","signature":"0x00"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := client.Get(srv.URL + "/auth/nonce?address=0xabc")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
