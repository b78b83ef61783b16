// Package bridge talks to the capture bridge: the local process that
// watches browser traffic, posts exchange envelopes to the daemon, and
// holds large response bodies until they are asked for by reference.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "http://127.0.0.1:7382"
	defaultTimeout      = 5 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// Body fetch failures callers branch on: an expired reference is
// normal churn, an oversized body is a policy refusal.
var (
	ErrBodyUnavailable = errors.New("bridge: body reference not available")
	ErrBodyTooLarge    = errors.New("bridge: body exceeds size limit")
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom bridge address.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout on the client's own HTTP
// client. It has no effect after WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxBodyBytes caps how large a fetched body may be.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "bridge")
	}
}

// Client is the HTTP client for the capture bridge.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewClient creates a bridge client with the default local address.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       slog.Default().With("component", "bridge"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBody retrieves a deferred response body by reference. The
// bridge drops references once the browser discards the exchange, so
// ErrBodyUnavailable is expected churn, not a fault.
func (c *Client) FetchBody(ctx context.Context, ref string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/body/"+url.PathEscape(ref), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("body fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrBodyUnavailable
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("body fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return "", ErrBodyTooLarge
	}
	return string(body), nil
}

type revealRequest struct {
	URL  string `json:"url"`
	Line int    `json:"line"`
}

// Reveal asks the bridge to open a source location in the inspected
// browser's devtools. Best-effort: the caller treats failure as a
// diagnostic, never as a pipeline fault.
func (c *Client) Reveal(ctx context.Context, rawURL string, line int) error {
	payload, err := json.Marshal(revealRequest{URL: rawURL, Line: line})
	if err != nil {
		return fmt.Errorf("failed to marshal reveal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reveal", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reveal failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("reveal failed: status %d", resp.StatusCode)
	}
	return nil
}
