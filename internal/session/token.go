package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// User is the cached backend user record.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Token loads the music-service token. It returns (nil, nil) when no token
// is stored or the stored token has expired; an expired token is removed.
func Token(ctx context.Context, s Store) (*oauth2.Token, error) {
	raw, ok, err := s.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !tok.Valid() {
		if err := s.Delete(ctx, KeyToken); err != nil {
			return nil, fmt.Errorf("dropping expired token: %w", err)
		}
		return nil, nil
	}
	return &tok, nil
}

// SetToken stores the music-service token.
func SetToken(ctx context.Context, s Store, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("cannot store nil token")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return s.Set(ctx, KeyToken, string(data))
}

// ClearToken removes the music-service token.
func ClearToken(ctx context.Context, s Store) error {
	return s.Delete(ctx, KeyToken)
}

// HasToken reports whether a usable token is stored.
func HasToken(ctx context.Context, s Store) bool {
	tok, err := Token(ctx, s)
	return err == nil && tok != nil
}

// CachedUser returns the cached backend user, or nil.
func CachedUser(ctx context.Context, s Store) (*User, error) {
	raw, ok, err := s.Get(ctx, KeyUser)
	if err != nil || !ok {
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("parsing cached user: %w", err)
	}
	return &u, nil
}

// SetCachedUser caches the backend user record.
func SetCachedUser(ctx context.Context, s Store, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	return s.Set(ctx, KeyUser, string(data))
}
