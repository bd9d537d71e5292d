package auth

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestAuthURL(t *testing.T) {
	a := New("client-1", "http://127.0.0.1:8080/callback")

	raw := a.AuthURL("state-abc")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthURL() = %q, not a URL: %v", raw, err)
	}

	q := u.Query()
	want := map[string]string{
		"response_type": "token",
		"client_id":     "client-1",
		"redirect_uri":  "http://127.0.0.1:8080/callback",
		"state":         "state-abc",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("AuthURL() %s = %q, want %q", k, got, v)
		}
	}
	for _, s := range Scopes {
		if !strings.Contains(q.Get("scope"), s) {
			t.Errorf("AuthURL() scope = %q, missing %q", q.Get("scope"), s)
		}
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	b, _ := GenerateState()
	if len(a) != 32 {
		t.Errorf("GenerateState() length = %d, want 32", len(a))
	}
	if a == b {
		t.Error("GenerateState() returned the same state twice")
	}
}

func TestParseFragment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		fragment   string
		wantToken  string
		wantExpiry time.Time
		wantState  string
		wantErr    error
	}{
		{
			name:       "full fragment",
			fragment:   "#access_token=abc&token_type=Bearer&expires_in=3600&state=s1",
			wantToken:  "abc",
			wantExpiry: now.Add(time.Hour),
			wantState:  "s1",
		},
		{
			name:      "no expiry",
			fragment:  "access_token=abc&state=s1",
			wantToken: "abc",
			wantState: "s1",
		},
		{
			name:      "denied",
			fragment:  "#error=access_denied&state=s1",
			wantState: "s1",
			wantErr:   ErrAccessDenied,
		},
		{
			name:      "missing token",
			fragment:  "#state=s1",
			wantState: "s1",
			wantErr:   ErrMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, state, err := ParseFragment(tt.fragment, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseFragment() error = %v, want %v", err, tt.wantErr)
			}
			if state != tt.wantState {
				t.Errorf("ParseFragment() state = %q, want %q", state, tt.wantState)
			}
			if tt.wantErr != nil {
				return
			}
			if tok.AccessToken != tt.wantToken {
				t.Errorf("AccessToken = %q, want %q", tok.AccessToken, tt.wantToken)
			}
			if tok.TokenType != "Bearer" {
				t.Errorf("TokenType = %q, want Bearer", tok.TokenType)
			}
			if !tok.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("Expiry = %v, want %v", tok.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestParseFragmentBadExpiry(t *testing.T) {
	if _, _, err := ParseFragment("access_token=a&expires_in=soon", time.Now()); err == nil {
		t.Error("ParseFragment() with bad expires_in succeeded, want error")
	}
}

func TestCallback(t *testing.T) {
	now := time.Now()

	if _, err := Callback("access_token=a&state=s1", "s1", now); err != nil {
		t.Errorf("Callback() error = %v", err)
	}
	if _, err := Callback("access_token=a&state=s2", "s1", now); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Callback() wrong state error = %v, want ErrStateMismatch", err)
	}
	if _, err := Callback("access_token=a&state=s1", "", now); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Callback() without issued state error = %v, want ErrStateMismatch", err)
	}
	if _, err := Callback("error=access_denied&state=s1", "s1", now); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Callback() denied error = %v, want ErrAccessDenied", err)
	}
}
