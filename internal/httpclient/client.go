// Package httpclient is the authenticated, retrying HTTP client the agent
// uses to talk to the control plane.
//
// Every request carries the node token twice: as an OAuth2 style bearer token
// and in the X-Node-Token header the control plane reads. Failed requests are
// retried according to a RetryPolicy with synchronous sleeps between
// attempts; non-retryable 4xx responses fail immediately with an
// *agenterr.AuthError, exhausted retries with an *agenterr.NetworkError.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opentune/internal/agenterr"
	"opentune/pkg/logging"

	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds one JSON request attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultDownloadTimeout bounds one download attempt.
	DefaultDownloadTimeout = 10 * time.Minute

	// NodeTokenHeader carries the node token.
	NodeTokenHeader = "X-Node-Token"

	subsystem = "httpclient"

	// maxErrorBody limits how much of an error response is kept.
	maxErrorBody = 512
)

// Client performs JSON requests and file downloads.
type Client struct {
	base            http.RoundTripper
	timeout         time.Duration
	downloadTimeout time.Duration
	token           string
	userAgent       string
	policy          RetryPolicy
	sleep           func(time.Duration)
	logger          *logging.Logger

	http     *http.Client
	download *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy sets the retry policy.
func WithPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithSleeper replaces time.Sleep between attempts. Tests use it to record
// the backoff schedule without waiting.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeouts sets the per-attempt timeouts for JSON requests and downloads.
// Zero keeps the default.
func WithTimeouts(request, download time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.timeout = request
		}
		if download > 0 {
			c.downloadTimeout = download
		}
	}
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client authenticating with token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		base:            http.DefaultTransport,
		timeout:         DefaultTimeout,
		downloadTimeout: DefaultDownloadTimeout,
		token:           token,
		userAgent:       "opentune-agent",
		policy:          DefaultPolicy(),
		sleep:           time.Sleep,
		logger:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := c.transport()
	c.http = &http.Client{Transport: transport, Timeout: c.timeout}
	c.download = &http.Client{Transport: transport, Timeout: c.downloadTimeout}
	return c
}

// Policy returns the retry policy in use.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// WithRetryPolicy returns a copy of c using p. The copy shares the
// underlying transport.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	clone := *c
	clone.policy = p
	return &clone
}

func (c *Client) transport() http.RoundTripper {
	header := map[string]string{"User-Agent": c.userAgent}
	if c.token != "" {
		header[NodeTokenHeader] = c.token
	}

	var rt http.RoundTripper = &headerTransport{base: c.base, header: header}
	if c.token == "" {
		return rt
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
		Base:   rt,
	}
}

// Do sends body JSON-encoded (nil sends no body) and decodes a successful
// response into out (nil discards it).
func (c *Client) Do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	return c.execute(ctx, c.http, method, url, "application/json", payload, func(resp *http.Response) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// Download streams the response body of a GET to destPath. The file only
// appears once the whole body has been received. It returns true on success.
func (c *Client) Download(ctx context.Context, url, destPath string) (bool, error) {
	if _, err := c.DownloadFile(ctx, url, destPath); err != nil {
		return false, err
	}
	return true, nil
}

// DownloadFile is Download returning the headers of the successful
// response.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string) (http.Header, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	var header http.Header
	err := c.execute(ctx, c.download, http.MethodGet, url, "*/*", nil, func(resp *http.Response) error {
		tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()

		if _, err := io.Copy(tmp, resp.Body); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to read download body: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		if err := os.Rename(tmpName, destPath); err != nil {
			os.Remove(tmpName)
			return err
		}
		header = resp.Header.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// execute runs the attempt loop. handle consumes a 2xx response; an error
// from handle counts as a failed attempt.
func (c *Client) execute(ctx context.Context, hc *http.Client, method, url, accept string, payload []byte, handle func(*http.Response) error) error {
	attempts := c.policy.attempts()

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr, lastStatus = nil, 0

		resp, err := c.send(ctx, hc, method, url, accept, payload)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			err = handle(resp)
			resp.Body.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		default:
			snippet := readSnippet(resp.Body)
			resp.Body.Close()
			if !c.policy.retryable(resp.StatusCode) {
				return &agenterr.AuthError{
					Method:     method,
					URL:        url,
					StatusCode: resp.StatusCode,
					Body:       snippet,
				}
			}
			lastStatus = resp.StatusCode
			lastErr = fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode))
			if snippet != "" {
				lastErr = fmt.Errorf("unexpected status %s: %s", http.StatusText(resp.StatusCode), snippet)
			}
		}

		if ctx.Err() != nil {
			return &agenterr.NetworkError{Method: method, URL: url, StatusCode: lastStatus, Attempts: attempt, Err: ctx.Err()}
		}

		if attempt < attempts {
			delay := c.policy.Delay(attempt)
			c.logger.Warn(subsystem, "%s %s attempt %d/%d failed: %v; retrying in %s",
				method, url, attempt, attempts, lastErr, delay)
			c.sleep(delay)
		}
	}

	return &agenterr.NetworkError{
		Method:     method,
		URL:        url,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Err:        lastErr,
	}
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, url, accept string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return hc.Do(req)
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// headerTransport sets fixed headers on every request.
type headerTransport struct {
	base   http.RoundTripper
	header map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.header {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
