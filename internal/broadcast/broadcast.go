// Package broadcast hands signed transactions to the network's broadcast
// endpoint. It reports acceptance only; confirmation tracking is elsewhere.
package broadcast

import (
	"context"
	"net/http"

	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/transport"
	"github.com/mrz1836/warden/internal/tx"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const submitPath = "/v1/tx"

// Receipt is the endpoint's answer to a submission.
type Receipt struct {
	Hash     string `json:"hash"`
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// Broadcaster submits signed transactions.
type Broadcaster interface {
	Submit(ctx context.Context, signed *tx.Signed) (*Receipt, error)
}

// Client posts signed transactions to an HTTP broadcast endpoint.
type Client struct {
	http  *transport.Client
	retry transport.RetryConfig
}

// NewClient creates a client for the endpoint at baseURL.
func NewClient(baseURL string, opts *transport.ClientOptions) (*Client, error) {
	c, err := transport.NewClient(baseURL, metrics.EndpointBroadcast, opts)
	if err != nil {
		return nil, err
	}
	return &Client{http: c, retry: transport.DefaultRetryConfig()}, nil
}

// SetRetryConfig overrides the retry policy.
func (c *Client) SetRetryConfig(cfg transport.RetryConfig) {
	c.retry = cfg
}

// Submit posts signed. Transport failures are retried: resubmitting the same
// signed bytes is idempotent on the ledger. A rejection is ErrTxRejected.
func (c *Client) Submit(ctx context.Context, signed *tx.Signed) (*Receipt, error) {
	if signed == nil {
		return nil, wardenerr.ErrInvalidTransaction
	}
	hash, err := signed.Hash()
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	err = c.http.DoRetry(ctx, c.retry, transport.Request{
		Method: http.MethodPost,
		Path:   submitPath,
		Body:   signed,
	}, &receipt)
	if err != nil {
		if se, ok := transport.AsStatus(err); ok && se.StatusCode >= 400 && se.StatusCode < 500 &&
			se.StatusCode != http.StatusTooManyRequests && se.StatusCode != http.StatusRequestTimeout {
			return nil, rejected(hash, se.Message)
		}
		return nil, err
	}

	if !receipt.Accepted {
		return nil, rejected(hash, receipt.Message)
	}
	if receipt.Hash == "" {
		receipt.Hash = hash
	}
	return &receipt, nil
}

func rejected(hash, reason string) error {
	details := map[string]string{"hash": hash}
	if reason != "" {
		details["reason"] = reason
	}
	return wardenerr.WithDetails(wardenerr.ErrTxRejected, details)
}
