package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/justestif/go-moodtunes/internal/backend"
	"github.com/justestif/go-moodtunes/internal/capture"
	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/logging"
	"github.com/justestif/go-moodtunes/internal/metrics"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
	"github.com/justestif/go-moodtunes/internal/pipeline"
	"github.com/justestif/go-moodtunes/internal/recommend"
	"github.com/justestif/go-moodtunes/internal/session"
)

var testTemplates = fstest.MapFS{
	"layouts/base.html":         {Data: []byte(`{{define "base"}}<html>{{template "content" .}}</html>{{end}}`)},
	"pages/home.html":           {Data: []byte(`{{define "content"}}{{if .Authenticated}}signed-in{{else}}signed-out{{end}}{{end}}`)},
	"pages/callback.html":       {Data: []byte(`{{define "content"}}callback{{end}}`)},
	"partials/suggestions.html": {Data: []byte(`{{range .Tracks}}<li>{{.DisplayName}}</li>{{end}}`)},
}

type stubAuth struct{}

func (stubAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?response_type=token&state=" + url.QueryEscape(state)
}

type stubDetector struct{}

func (stubDetector) Detect(context.Context, capture.Frame) ([]detection.Face, error) {
	return nil, nil
}

func (stubDetector) Ready() bool { return true }

type stubGenres struct{}

func (stubGenres) GenresFor(context.Context, mood.Label) ([]string, error) {
	return []string{"pop"}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, req recommend.Request) (recommend.Bundle, error) {
	return recommend.Bundle{
		Mood:   req.Mood,
		Tracks: []music.Track{{ID: "t1", Title: "One", Artist: "Band", PreviewURL: "https://p/1"}},
	}, nil
}

type stubPersister struct{}

func (stubPersister) Save(_ context.Context, m mood.Label, tracks []music.Track, name string) (*music.Playlist, error) {
	return &music.Playlist{ID: "pl-1", Name: name, Mood: string(m), Tracks: tracks}, nil
}

func (stubPersister) Tracks(context.Context, string) ([]music.Track, error) {
	return nil, nil
}

type stubAccount struct {
	loginErr error
}

func (a stubAccount) Login(_ context.Context, email, _ string) (*backend.LoginResult, error) {
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return &backend.LoginResult{User: backend.User{ID: 3, Email: email, Username: "ana"}, Token: "backend-tok"}, nil
}

func (stubAccount) TopMoods(context.Context, int) ([]backend.MoodCount, error) {
	return []backend.MoodCount{{Name: "Happy", Count: 4}}, nil
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*httptest.Server, *SessionManager) {
	t.Helper()
	logger := logging.Discard()

	build := func(store session.Store) *pipeline.Session {
		return pipeline.New(pipeline.Components{
			Store:     store,
			Detector:  stubDetector{},
			Resolver:  mood.NewResolver(mood.DefaultSet()),
			Profiles:  mood.DefaultProfiles(),
			Genres:    stubGenres{},
			Fetcher:   stubFetcher{},
			Persister: stubPersister{},
		}, pipeline.WithLogger(logger))
	}
	sessions := NewSessionManager(session.MemoryProvider{}, build, WithSessionLogger(logger))

	cfg := ServerConfig{
		TemplatesFS: testTemplates,
		Auth:        stubAuth{},
		Sessions:    sessions,
		Profiles:    mood.DefaultProfiles(),
		Backend:     stubAccount{},
		Metrics:     metrics.New("moodtunes-test"),
		Logger:      logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		sessions.CloseAll()
	})
	return ts, sessions
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, c *http.Client, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, target, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, data
}

func errorKind(t *testing.T, data []byte) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decoding error body %q: %v", data, err)
	}
	return body.Error.Kind
}

// signIn runs the login redirect and fragment hand-off.
func signIn(t *testing.T, ts *httptest.Server, c *http.Client) {
	t.Helper()
	resp, _ := do(t, c, http.MethodGet, ts.URL+"/auth/login", nil)
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("login status = %d, want 307", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorize URL has no state")
	}

	fragment := fmt.Sprintf("access_token=abc&token_type=Bearer&expires_in=3600&state=%s", state)
	resp, data := do(t, c, http.MethodPost, ts.URL+"/auth/token", map[string]string{"fragment": fragment})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d (%s), want 200", resp.StatusCode, data)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{errkind.Unauthenticated, http.StatusUnauthorized},
		{errkind.AuthorizationExpired, http.StatusUnauthorized},
		{errkind.NoGenresForMood, http.StatusUnprocessableEntity},
		{errkind.UnsupportedMood, http.StatusUnprocessableEntity},
		{errkind.LowConfidenceDetection, http.StatusUnprocessableEntity},
		{errkind.CameraUnavailable, http.StatusConflict},
		{errkind.ModelNotReady, http.StatusServiceUnavailable},
		{errkind.NetworkFailure, http.StatusBadGateway},
		{errkind.Rejected, http.StatusBadRequest},
		{errkind.PlaylistCreateFailure, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := errkind.Wrap(tt.kind, "op", errors.New("cause"))
		if got := statusFor(err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteErrorInProgress(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, pipeline.ErrInProgress)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if got := errorKind(t, rec.Body.Bytes()); got != "in_progress" {
		t.Errorf("kind = %q, want in_progress", got)
	}
}

func TestHomeSetsSessionCookie(t *testing.T) {
	ts, sessions := newTestServer(t, nil)
	c := newClient(t)

	resp, data := do(t, c, http.MethodGet, ts.URL+"/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(data), "signed-out") {
		t.Errorf("body = %q, want signed-out page", data)
	}

	var found bool
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookieName && validSessionID(ck.Value) && ck.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Error("response did not set an HttpOnly session cookie")
	}

	do(t, c, http.MethodGet, ts.URL+"/", nil)
	if got := sessions.Len(); got != 1 {
		t.Errorf("sessions = %d, want 1 after two requests", got)
	}
}

func TestTokenFlow(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	signIn(t, ts, c)

	resp, data := do(t, c, http.MethodGet, ts.URL+"/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var st pipeline.Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !st.Authenticated {
		t.Error("Authenticated = false after token hand-off")
	}

	_, data = do(t, c, http.MethodGet, ts.URL+"/", nil)
	if !strings.Contains(string(data), "signed-in") {
		t.Errorf("home body = %q, want signed-in page", data)
	}
}

func TestTokenRejectsWrongState(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	do(t, c, http.MethodGet, ts.URL+"/auth/login", nil)

	resp, data := do(t, c, http.MethodPost, ts.URL+"/auth/token", map[string]string{
		"fragment": "access_token=abc&state=forged",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := errorKind(t, data); got != "rejected" {
		t.Errorf("kind = %q, want rejected", got)
	}

	// The state is single use.
	_, data = do(t, c, http.MethodGet, ts.URL+"/api/status", nil)
	var st pipeline.Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.Authenticated {
		t.Error("Authenticated = true after forged state")
	}
}

func TestTokenAccessDenied(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/auth/login", nil)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	state := loc.Query().Get("state")

	resp, data := do(t, c, http.MethodPost, ts.URL+"/auth/token", map[string]string{
		"fragment": "error=access_denied&state=" + state,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if got := errorKind(t, data); got != "access_denied" {
		t.Errorf("kind = %q, want access_denied", got)
	}
}

func TestManualMoodThenSuggestions(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)
	signIn(t, ts, c)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/api/suggestions", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty suggestions status = %d, want 204", resp.StatusCode)
	}

	resp, data := do(t, c, http.MethodPost, ts.URL+"/api/mood", map[string]string{"mood": "Sad"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mood status = %d (%s), want 200", resp.StatusCode, data)
	}

	resp, data = do(t, c, http.MethodGet, ts.URL+"/api/suggestions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suggestions status = %d, want 200", resp.StatusCode)
	}
	var b recommend.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("decoding bundle: %v", err)
	}
	if b.Mood != mood.Sad || len(b.Tracks) != 1 {
		t.Errorf("bundle = %+v, want Sad with one track", b)
	}

	resp, data = do(t, c, http.MethodGet, ts.URL+"/partials/suggestions", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "One by Band") {
		t.Errorf("partial = %d %q, want rendered track", resp.StatusCode, data)
	}

	resp, data = do(t, c, http.MethodPost, ts.URL+"/api/playback/t1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("playback status = %d (%s), want 200", resp.StatusCode, data)
	}

	resp, data = do(t, c, http.MethodPost, ts.URL+"/api/playlists", map[string]string{"name": "Blue"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d (%s), want 201", resp.StatusCode, data)
	}
}

func TestManualMoodUnsupported(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	resp, data := do(t, c, http.MethodPost, ts.URL+"/api/mood", map[string]string{"mood": "bored"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if got := errorKind(t, data); got != "unsupported_mood" {
		t.Errorf("kind = %q, want unsupported_mood", got)
	}
}

func TestSnapshotRejectsNonImage(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/snapshot", strings.NewReader("not an image"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("POST /api/snapshot error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	ts, sessions := newTestServer(t, nil)
	c := newClient(t)
	signIn(t, ts, c)
	do(t, c, http.MethodPost, ts.URL+"/api/mood", map[string]string{"mood": "Happy"})

	resp, _ := do(t, c, http.MethodPost, ts.URL+"/auth/logout", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	if got := sessions.Len(); got != 0 {
		t.Errorf("sessions after logout = %d, want 0", got)
	}

	_, data := do(t, c, http.MethodGet, ts.URL+"/", nil)
	if !strings.Contains(string(data), "signed-out") {
		t.Errorf("home after logout = %q, want signed-out page", data)
	}
}

func TestBackendLoginAndStats(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	resp, data := do(t, c, http.MethodPost, ts.URL+"/api/login", map[string]string{"email": "a@b.c", "password": "pw"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d (%s), want 200", resp.StatusCode, data)
	}
	var u session.User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("decoding user: %v", err)
	}
	if u.ID != 3 || u.Username != "ana" {
		t.Errorf("user = %+v, want id 3 ana", u)
	}

	resp, data = do(t, c, http.MethodGet, ts.URL+"/api/stats/top-moods", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", resp.StatusCode)
	}
	var counts []backend.MoodCount
	if err := json.Unmarshal(data, &counts); err != nil {
		t.Fatalf("decoding counts: %v", err)
	}
	if len(counts) != 1 || counts[0].Name != "Happy" {
		t.Errorf("counts = %+v, want [Happy 4]", counts)
	}
}

func TestBackendLoginFailure(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.Backend = stubAccount{loginErr: errkind.New(errkind.Unauthenticated, "backend.login")}
	})
	c := newClient(t)

	resp, _ := do(t, c, http.MethodPost, ts.URL+"/api/login", map[string]string{"email": "a@b.c", "password": "bad"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestBackendDisabled(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *ServerConfig) { cfg.Backend = nil })
	c := newClient(t)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/api/stats/top-moods", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMoods(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	_, data := do(t, c, http.MethodGet, ts.URL+"/api/moods", nil)
	var got []moodView
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding moods: %v", err)
	}
	if len(got) != len(mood.DefaultProfiles()) {
		t.Fatalf("moods = %d, want %d", len(got), len(mood.DefaultProfiles()))
	}
	if got[0].Mood != mood.Happy || got[0].Color == "" {
		t.Errorf("first mood = %+v, want Happy with a color", got[0])
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.RateLimitRPS = 0.5
		cfg.RateLimitBurst = 1
	})
	c := newClient(t)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/api/moods", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want 200", resp.StatusCode)
	}

	resp, data := do(t, c, http.MethodGet, ts.URL+"/api/moods", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if got := errorKind(t, data); got != "rate_limited" {
		t.Errorf("kind = %q, want rate_limited", got)
	}

	// Pages sit outside the limited group.
	resp, _ = do(t, c, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	c := newClient(t)

	do(t, c, http.MethodGet, ts.URL+"/api/moods", nil)

	resp, data := do(t, c, http.MethodGet, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(data), "/api/moods") {
		t.Errorf("metrics output missing route label")
	}
}
