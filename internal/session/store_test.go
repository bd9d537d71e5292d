package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// fakeRepo is an in-memory ValueRepository.
type fakeRepo struct {
	values map[string]map[string]string
}

func (r *fakeRepo) GetValue(_ context.Context, id, key string) (string, bool, error) {
	v, ok := r.values[id][key]
	return v, ok, nil
}

func (r *fakeRepo) SetValue(_ context.Context, id, key, value string) error {
	if r.values[id] == nil {
		r.values[id] = map[string]string{}
	}
	r.values[id][key] = value
	return nil
}

func (r *fakeRepo) DeleteValue(_ context.Context, id, key string) error {
	delete(r.values[id], key)
	return nil
}

func (r *fakeRepo) DeleteValues(_ context.Context, id string) error {
	delete(r.values, id)
	return nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json")),
		"db":     NewDBStore(&fakeRepo{values: map[string]map[string]string{}}, "abc"),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
				t.Fatalf("Get(missing) = ok %v, err %v; want false, nil", ok, err)
			}

			if err := s.Set(ctx, "k", "v"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if v, ok, err := s.Get(ctx, "k"); v != "v" || !ok || err != nil {
				t.Errorf("Get(k) = %q, %v, %v; want v, true, nil", v, ok, err)
			}

			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "k"); err != nil {
				t.Errorf("Delete(missing) error = %v", err)
			}
			if _, ok, _ := s.Get(ctx, "k"); ok {
				t.Error("Get after Delete still present")
			}

			_ = s.Set(ctx, "a", "1")
			_ = s.Set(ctx, "b", "2")
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if _, ok, _ := s.Get(ctx, "a"); ok {
				t.Error("Get after Clear still present")
			}
		})
	}
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s", "session.json")
	s := NewFileStore(path)

	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		token   *oauth2.Token
		wantNil bool
	}{
		{
			name:  "valid token",
			token: &oauth2.Token{AccessToken: "abc", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)},
		},
		{
			name:  "no expiry",
			token: &oauth2.Token{AccessToken: "abc", TokenType: "Bearer"},
		},
		{
			name:    "expired token is dropped",
			token:   &oauth2.Token{AccessToken: "old", TokenType: "Bearer", Expiry: time.Now().Add(-time.Minute)},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			if err := SetToken(ctx, s, tt.token); err != nil {
				t.Fatalf("SetToken() error = %v", err)
			}

			got, err := Token(ctx, s)
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("Token() = %v, want nil", got)
				}
				if _, ok, _ := s.Get(ctx, KeyToken); ok {
					t.Error("expired token still stored")
				}
				return
			}
			if got == nil || got.AccessToken != tt.token.AccessToken {
				t.Errorf("Token() = %v, want access token %q", got, tt.token.AccessToken)
			}
		})
	}
}

func TestClearToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = SetToken(ctx, s, &oauth2.Token{AccessToken: "abc"})
	_ = SetCachedUser(ctx, s, User{ID: 7, Email: "a@b.c"})

	if !HasToken(ctx, s) {
		t.Fatal("HasToken() = false after SetToken")
	}
	if err := ClearToken(ctx, s); err != nil {
		t.Fatalf("ClearToken() error = %v", err)
	}
	if HasToken(ctx, s) {
		t.Error("HasToken() = true after ClearToken")
	}

	u, err := CachedUser(ctx, s)
	if err != nil || u == nil || u.ID != 7 {
		t.Errorf("CachedUser() = %v, %v; want user 7", u, err)
	}
	if err := SetToken(ctx, s, nil); err == nil {
		t.Error("SetToken(nil) error = nil, want error")
	}
}
