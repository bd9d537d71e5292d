// Package spotify adapts the Spotify Web API to the pipeline. Every call
// reads the current token from the session store first, so a token cleared
// by another handler is noticed before the next request goes out.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/session"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 10 * time.Second

// Client wraps the Spotify API with token lookup and error normalization.
type Client struct {
	store   session.Store
	base    *http.Client
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying transport client. The token is added on
// top of it per request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.base = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.base = &http.Client{Timeout: d, Transport: c.base.Transport}
		}
	}
}

// WithBaseURL points the client at a different API root. It must end in "/".
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// New creates a Client that reads its token from store.
func New(store session.Store, opts ...Option) *Client {
	c := &Client{
		store: store,
		base:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// api builds an authenticated API client from the stored token.
func (c *Client) api(ctx context.Context) (*spotify.Client, error) {
	tok, err := session.Token(ctx, c.store)
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if tok == nil {
		return nil, errkind.New(errkind.Unauthenticated, "spotify")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	hc.Timeout = c.base.Timeout

	var opts []spotify.ClientOption
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	return spotify.New(hc, opts...), nil
}

func (c *Client) requestOpts(limit int) []spotify.RequestOption {
	var opts []spotify.RequestOption
	if limit > 0 {
		opts = append(opts, spotify.Limit(limit))
	}
	return opts
}

// CurrentUser returns the authenticated user's id and display name.
func (c *Client) CurrentUser(ctx context.Context) (id, displayName string, err error) {
	api, err := c.api(ctx)
	if err != nil {
		return "", "", err
	}
	user, err := api.CurrentUser(ctx)
	if err != nil {
		return "", "", normalize("getting current user", err)
	}
	return user.ID, user.DisplayName, nil
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	id, _, err := c.CurrentUser(ctx)
	return id, err
}
