package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/warden/internal/metrics"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second

	// maxResponseBody is the most we read from any response (1 MB).
	maxResponseBody = 1 << 20
)

// ErrHTTPStatus marks a non-2xx response. The concrete error is *StatusError.
var ErrHTTPStatus = &wardenerr.WardenError{
	Code:     "HTTP_STATUS",
	Message:  "unexpected HTTP status",
	ExitCode: wardenerr.ExitGeneral,
}

// StatusError is a non-2xx response with the server's error body, if any.
type StatusError struct {
	StatusCode int
	Code       string // machine code from the body, e.g. "nonce_consumed"
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrHTTPStatus) match any status error.
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// AsStatus extracts a *StatusError from err.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

// errorBody is the error shape the warden endpoints return.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// LogWriter is the logging surface the client needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Client sends JSON requests to one base URL.
type Client struct {
	baseURL    string
	endpoint   string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     LogWriter
	userAgent  string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient overrides the default client (useful for testing).
	HTTPClient *http.Client
	// RateLimiter is shared between clients; nil uses DefaultRateLimiter.
	RateLimiter *RateLimiter
	Logger      LogWriter
	UserAgent   string
}

// NewClient creates a client for baseURL. endpoint names the remote for rate
// limiting and metrics.
func NewClient(baseURL, endpoint string, opts *ClientOptions) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{
			"url": baseURL,
		})
	}

	c := &Client{
		baseURL:  strings.TrimRight(parsed.String(), "/"),
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		userAgent: "warden",
	}

	if opts != nil {
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		c.limiter = opts.RateLimiter
		c.logger = opts.Logger
		if opts.UserAgent != "" {
			c.userAgent = opts.UserAgent
		}
	}
	if c.limiter == nil {
		c.limiter = DefaultRateLimiter()
	}

	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one JSON call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Bearer string
}

// Do performs req once and decodes a 2xx body into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	start := time.Now()
	err := c.do(ctx, req, out)
	metrics.Global.RecordHTTPCall(c.endpoint, time.Since(start), err)
	if err != nil {
		c.debug("%s %s %s failed: %s", c.endpoint, req.Method, req.Path, wardenerr.Code(err))
	}
	return err
}

// DoRetry performs req with retries. Use only for idempotent requests.
func (c *Client) DoRetry(ctx context.Context, cfg RetryConfig, req Request, out any) error {
	_, err := RetryWithConfig(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, c.Do(ctx, req, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, req Request, out any) error {
	if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL is built from validated config
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return WrapRetryable(wardenerr.WithCause(wardenerr.ErrNetworkError, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return WrapRetryable(wardenerr.WithCause(wardenerr.ErrNetworkError, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return wardenerr.WithCause(wardenerr.ErrNetworkError, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func statusError(resp *http.Response, body []byte) error {
	se := &StatusError{StatusCode: resp.StatusCode}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		se.Code = eb.Code
		se.Message = eb.Message
		if se.Message == "" {
			se.Message = eb.Error
		}
	} else {
		se.Message = truncate(strings.TrimSpace(string(body)), 256)
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		details := map[string]string{"status": strconv.Itoa(resp.StatusCode)}
		if wait := ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			details["retry_after"] = wait.String()
		}
		return fmt.Errorf("%w: %w", wardenerr.WithDetails(ErrRateLimited, details), se)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", ErrTimeout, se)
	case resp.StatusCode >= 500:
		return WrapRetryable(se)
	}
	return se
}

func (c *Client) debug(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
