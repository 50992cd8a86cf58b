package registry

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/transport"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const walletsPath = "/v1/wallets"

// TokenSource supplies the bearer credential for remote calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// RemoteStore keeps records on the remote wallet-record API.
type RemoteStore struct {
	client *transport.Client
	tokens TokenSource
	retry  transport.RetryConfig
}

type listResponse struct {
	Wallets []*Entry `json:"wallets"`
}

// NewRemoteStore creates a store for the API at baseURL.
func NewRemoteStore(baseURL string, tokens TokenSource, opts *transport.ClientOptions) (*RemoteStore, error) {
	client, err := transport.NewClient(baseURL, metrics.EndpointRegistry, opts)
	if err != nil {
		return nil, err
	}
	return &RemoteStore{client: client, tokens: tokens, retry: transport.DefaultRetryConfig()}, nil
}

// SetRetryConfig overrides the retry policy for idempotent calls.
func (r *RemoteStore) SetRetryConfig(cfg transport.RetryConfig) {
	r.retry = cfg
}

// Create implements Store. It is not retried: a lost response would turn a
// successful create into ErrWalletExists on the second attempt.
func (r *RemoteStore) Create(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	token, err := r.token(ctx)
	if err != nil {
		return err
	}
	err = r.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   walletsPath,
		Body:   e,
		Bearer: token,
	}, nil)
	return mapStatus(err, e.Address)
}

// Get implements Store.
func (r *RemoteStore) Get(ctx context.Context, address string) (*Entry, error) {
	key, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}
	var e Entry
	err = r.client.DoRetry(ctx, r.retry, transport.Request{
		Method: http.MethodGet,
		Path:   walletsPath + "/" + url.PathEscape(key),
		Bearer: token,
	}, &e)
	if err != nil {
		return nil, mapStatus(err, address)
	}
	if err := e.Validate(); err != nil {
		return nil, wardenerr.Wrap(err, "remote record %s", address)
	}
	return &e, nil
}

// List implements Store.
func (r *RemoteStore) List(ctx context.Context) ([]*Entry, error) {
	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp listResponse
	err = r.client.DoRetry(ctx, r.retry, transport.Request{
		Method: http.MethodGet,
		Path:   walletsPath,
		Bearer: token,
	}, &resp)
	if err != nil {
		return nil, mapStatus(err, "")
	}

	entries := make([]*Entry, 0, len(resp.Wallets))
	for _, e := range resp.Wallets {
		if e == nil || e.Validate() != nil {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Update implements Store.
func (r *RemoteStore) Update(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	token, err := r.token(ctx)
	if err != nil {
		return err
	}
	err = r.client.DoRetry(ctx, r.retry, transport.Request{
		Method: http.MethodPut,
		Path:   walletsPath + "/" + url.PathEscape(e.Key()),
		Body:   e,
		Bearer: token,
	}, nil)
	return mapStatus(err, e.Address)
}

// Delete implements Store.
func (r *RemoteStore) Delete(ctx context.Context, address string) error {
	key, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	token, err := r.token(ctx)
	if err != nil {
		return err
	}
	err = r.client.DoRetry(ctx, r.retry, transport.Request{
		Method: http.MethodDelete,
		Path:   walletsPath + "/" + url.PathEscape(key),
		Bearer: token,
	}, nil)
	return mapStatus(err, address)
}

func (r *RemoteStore) token(ctx context.Context) (string, error) {
	if r.tokens == nil {
		return "", wardenerr.ErrNotAuthenticated
	}
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", wardenerr.ErrNotAuthenticated
	}
	return token, nil
}

func mapStatus(err error, address string) error {
	if err == nil {
		return nil
	}
	se, ok := transport.AsStatus(err)
	if !ok {
		return err
	}
	switch se.StatusCode {
	case http.StatusNotFound:
		return notFound(address)
	case http.StatusConflict:
		return wardenerr.WithDetails(wardenerr.ErrWalletExists, map[string]string{"address": address})
	case http.StatusUnauthorized:
		return wardenerr.WithCause(wardenerr.ErrNotAuthenticated, se)
	case http.StatusForbidden:
		return wardenerr.WithCause(wardenerr.ErrPermission, se)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return wardenerr.WithCause(wardenerr.ErrInvalidInput, se)
	}
	return err
}
