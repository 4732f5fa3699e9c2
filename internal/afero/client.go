package afero

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource supplies a bearer token before every attempt. Implementations
// surface credential failures as ErrInvalidAuth.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client issues authenticated calls against the Afero API with bounded
// retries. 429 and 503 are retried with linear backoff, 403 fails
// immediately; everything else is returned to the caller for status
// interpretation.
type Client struct {
	httpClient    *http.Client
	ownsClient    bool
	tokens        TokenSource
	info          ClientInfo
	logger        *slog.Logger
	sleepFn       func(ctx context.Context, d time.Duration) error
	onInvalidAuth func()

	mu      sync.RWMutex
	secrets []string
}

// RequestOptions carries optional request parts.
type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
	Body    []byte
}

// Response is a fully drained HTTP response. The body is always read to
// completion before Request returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient builds a Client for one Afero platform. When httpClient is nil
// an internal one is created and owned by the Client; injected transports
// are never closed.
func NewClient(info ClientInfo, tokens TokenSource, httpClient *http.Client) *Client {
	owns := httpClient == nil
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		ownsClient: owns,
		tokens:     tokens,
		info:       info,
		logger:     slog.Default(),
		sleepFn: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// WithLogger attaches a component logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// OnInvalidAuth registers a hook fired when the token source reports bad
// credentials, before the error is returned.
func (c *Client) OnInvalidAuth(fn func()) *Client {
	c.onInvalidAuth = fn
	return c
}

// Info returns the platform description the client talks to.
func (c *Client) Info() ClientInfo {
	return c.info
}

// AddSecret registers a value that must never appear in log output.
func (c *Client) AddSecret(v string) {
	if v == "" {
		return
	}
	c.mu.Lock()
	c.secrets = append(c.secrets, v)
	c.mu.Unlock()
}

func (c *Client) redact(s string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, secret := range c.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

// Close releases the HTTP transport when it was created internally.
func (c *Client) Close() {
	if c.ownsClient {
		c.httpClient.CloseIdleConnections()
	}
}

// Request performs an authenticated call with up to three attempts. Before
// retry n the client sleeps 250ms × n, so a fully exhausted call waits
// 250ms then 500ms. Rate limiting (429) and unavailability (503) are the
// only retryable statuses.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts RequestOptions) (*Response, error) {
	c.logger.Debug("making request",
		"method", method,
		"url", c.redact(rawURL),
		"query", c.redact(opts.Query.Encode()))

	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * retryBackoffStep
			if err := c.sleepFn(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, retryable, err := c.do(ctx, method, rawURL, opts)
		if err != nil {
			return nil, err
		}
		if retryable {
			c.logger.Debug("retryable status, backing off",
				"status", resp.StatusCode, "attempt", attempt)
			continue
		}
		return resp, nil
	}
	return nil, ErrExceededRetries
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts RequestOptions) (*Response, bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidAuth) && c.onInvalidAuth != nil {
			c.onInvalidAuth()
		}
		return nil, false, err
	}

	target := rawURL
	if len(opts.Query) > 0 {
		target = rawURL + "?" + opts.Query.Encode()
	}
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.info.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	// 503 means the service is temporarily unavailable and 429 means the
	// account is being rate limited; both clear up after a short wait.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, true, nil
	}
	if resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, ErrForbidden
	}

	// The Accept-Encoding header is set by hand, so the transport does not
	// decompress for us.
	respBody := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, err
		}
		defer gz.Close()
		respBody = gz
	}
	payload, err := io.ReadAll(respBody)
	if err != nil {
		return nil, false, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, false, nil
}
