// Package backend is a client for the MoodTunes REST backend: moods, mood
// genres, activity and relaxation suggestions, captured images, login and
// dashboard stats.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/resilience"
)

const (
	// DefaultBaseURL is the development backend root.
	DefaultBaseURL = "http://127.0.0.1:8000/api"
	// DefaultTimeout bounds each request.
	DefaultTimeout = 10 * time.Second

	userAgent = "moodtunes/1.0"
)

// Client is a backend API client. Mood rows are cached after the first
// successful read.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger

	moodsMu sync.RWMutex
	moods   []Mood
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithToken sets the default API token. A token on the request context takes
// precedence.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithExecutor wraps read requests in a retry and circuit breaker executor.
func WithExecutor(e *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenKey struct{}

// ContextWithToken attaches a per-user API token to ctx.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func (c *Client) tokenFor(ctx context.Context) string {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok && tok != "" {
		return tok
	}
	return c.token
}

// getJSON reads path into out, under the executor when one is set.
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	call := func(ctx context.Context) error {
		return c.do(ctx, op, http.MethodGet, path, "", nil, out)
	}
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, "backend."+op, call, nil)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

// do performs one request. Every failure leaves here carrying an errkind.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.tokenFor(ctx); tok != "" {
		req.Header.Set("Authorization", "Token "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.NetworkFailure, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errkind.Wrap(errkind.NetworkFailure, op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
