// Package auth implements the music service's implicit-grant sign-in: the
// authorize URL, the anti-forgery state and parsing of the token the
// service returns in the redirect URL fragment.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrMissingToken is returned when the fragment carries no access token.
	ErrMissingToken = errors.New("redirect fragment has no access_token")

	// ErrAccessDenied is returned when the user declined the authorization.
	ErrAccessDenied = errors.New("authorization was denied")
)

// Scopes requested at sign-in.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeStreaming,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
}

// Authenticator builds implicit-grant authorize URLs.
type Authenticator struct {
	auth *spotifyauth.Authenticator
}

// New creates an Authenticator for a client id and redirect URI. The
// redirect URI must match the music service's app configuration.
func New(clientID, redirectURI string) *Authenticator {
	return &Authenticator{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(clientID),
			spotifyauth.WithRedirectURL(redirectURI),
			spotifyauth.WithScopes(Scopes...),
		),
	}
}

// AuthURL returns the authorize URL. The service redirects back with the
// token in the URL fragment rather than an authorization code.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state, oauth2.SetAuthURLParam("response_type", "token"))
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ParseFragment reads the redirect fragment
// ("access_token=...&token_type=Bearer&expires_in=3600&state=...") into a
// token and the returned state. A leading '#' is ignored.
func ParseFragment(fragment string, now time.Time) (*oauth2.Token, string, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return nil, "", fmt.Errorf("parsing fragment: %w", err)
	}

	state := values.Get("state")
	if e := values.Get("error"); e != "" {
		if e == "access_denied" {
			return nil, state, ErrAccessDenied
		}
		return nil, state, fmt.Errorf("authorization error: %s", e)
	}

	access := values.Get("access_token")
	if access == "" {
		return nil, state, ErrMissingToken
	}

	tok := &oauth2.Token{
		AccessToken: access,
		TokenType:   values.Get("token_type"),
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if raw := values.Get("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, state, fmt.Errorf("invalid expires_in %q", raw)
		}
		tok.Expiry = now.Add(time.Duration(secs) * time.Second)
	}
	return tok, state, nil
}

// Callback parses the fragment and checks its state against the one issued
// with the authorize URL.
func Callback(fragment, wantState string, now time.Time) (*oauth2.Token, error) {
	tok, state, err := ParseFragment(fragment, now)
	if wantState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(wantState)) != 1 {
		return nil, ErrStateMismatch
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}
