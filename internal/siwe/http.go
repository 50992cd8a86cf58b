package siwe

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/transport"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	noncePath  = "/auth/nonce"
	verifyPath = "/auth/verify"
	linkPath   = "/auth/link"
)

// Issuer error codes recognized in response bodies.
const (
	codeNonceExpired  = "nonce_expired"
	codeAlreadyLinked = "address_already_linked"
)

// HTTPIssuer talks to the remote nonce/verification service.
type HTTPIssuer struct {
	client *transport.Client
	retry  transport.RetryConfig
}

type signedBody struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// NewHTTPIssuer creates an issuer for the service at baseURL.
func NewHTTPIssuer(baseURL string, opts *transport.ClientOptions) (*HTTPIssuer, error) {
	client, err := transport.NewClient(baseURL, metrics.EndpointIssuer, opts)
	if err != nil {
		return nil, err
	}
	return &HTTPIssuer{client: client, retry: transport.DefaultRetryConfig()}, nil
}

// SetRetryConfig overrides the retry policy for nonce requests.
func (h *HTTPIssuer) SetRetryConfig(cfg transport.RetryConfig) {
	h.retry = cfg
}

// Nonce implements Issuer. Requesting a nonce has no side effect worth
// protecting, so transport failures are retried.
func (h *HTTPIssuer) Nonce(ctx context.Context, address string) (*Nonce, error) {
	var n Nonce
	err := h.client.DoRetry(ctx, h.retry, transport.Request{
		Method: http.MethodGet,
		Path:   noncePath,
		Query:  url.Values{"address": {address}},
	}, &n)
	if err != nil {
		return nil, mapIssuerStatus(err, wardenerr.ErrNonceRejected)
	}
	if n.Value == "" {
		return nil, wardenerr.WithDetails(wardenerr.ErrNetworkError, map[string]string{"issuer": "empty nonce"})
	}
	return &n, nil
}

// Verify implements Issuer. It is never retried.
func (h *HTTPIssuer) Verify(ctx context.Context, msg SignedMessage) (*VerifyResult, error) {
	var res VerifyResult
	err := h.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   verifyPath,
		Body:   signedBody{Message: msg.Message, Signature: hexutil.Encode(msg.Signature)},
	}, &res)
	if err != nil {
		return nil, mapIssuerStatus(err, wardenerr.ErrNonceRejected)
	}
	if res.Token == "" {
		return nil, wardenerr.WithDetails(wardenerr.ErrNetworkError, map[string]string{"issuer": "empty token"})
	}
	return &res, nil
}

// Link implements Issuer. It is never retried.
func (h *HTTPIssuer) Link(ctx context.Context, cred *credential.Credential, msg SignedMessage) (*LinkResult, error) {
	if cred == nil || cred.Token == "" {
		return nil, wardenerr.ErrNotAuthenticated
	}
	var res LinkResult
	err := h.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   linkPath,
		Body:   signedBody{Message: msg.Message, Signature: hexutil.Encode(msg.Signature)},
		Bearer: cred.Token,
	}, &res)
	if err != nil {
		return nil, mapIssuerStatus(err, wardenerr.ErrNotAuthenticated)
	}
	return &res, nil
}

// mapIssuerStatus turns issuer rejections into protocol errors. unauthorized
// is what a 401 means for the call: a bad signature on verify, a bad token on
// link. Rate limiting and timeouts keep their transport errors.
func mapIssuerStatus(err error, unauthorized *wardenerr.WardenError) error {
	se, ok := transport.AsStatus(err)
	if !ok || se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusRequestTimeout {
		return err
	}
	switch {
	case se.StatusCode == http.StatusConflict || se.Code == codeAlreadyLinked:
		return wardenerr.WithCause(wardenerr.ErrAddressAlreadyLinked, se)
	case se.StatusCode == http.StatusGone || se.Code == codeNonceExpired:
		return wardenerr.WithCause(wardenerr.ErrChallengeExpired, se)
	case se.StatusCode == http.StatusUnauthorized:
		return wardenerr.WithCause(unauthorized, se)
	case se.StatusCode >= 400 && se.StatusCode < 500:
		return wardenerr.WithCause(wardenerr.ErrNonceRejected, se)
	}
	return err
}
