package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/logging"
	"github.com/justestif/go-moodtunes/internal/resilience"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

var testMoods = []Mood{{ID: 1, Name: "Happy"}, {ID: 2, Name: "Sad"}}

func TestMoodGenres(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mood-genres/" {
			t.Errorf("path = %q, want /api/mood-genres/", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token abc" {
			t.Errorf("Authorization = %q, want %q", got, "Token abc")
		}
		writeJSON(w, http.StatusOK, []MoodGenre{
			{ID: 1, Mood: Mood{ID: 1, Name: "Happy"}, MoodID: 1, Genres: []string{"pop", "dance"}},
			{ID: 2, Mood: Mood{ID: 2, Name: "Sad"}, MoodID: 2, Genres: []string{"acoustic"}},
			{ID: 3, Mood: Mood{ID: 1, Name: "Happy"}, MoodID: 1, Genres: []string{"funk"}},
		})
	})

	c := New(srv.URL+"/api", WithToken("abc"))
	got, err := c.MoodGenres(context.Background())
	if err != nil {
		t.Fatalf("MoodGenres() error = %v", err)
	}
	want := map[string][]string{
		"Happy": {"pop", "dance", "funk"},
		"Sad":   {"acoustic"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MoodGenres() = %v, want %v", got, want)
	}
}

func TestActivitiesResolvesMoodID(t *testing.T) {
	var moodCalls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moods/":
			moodCalls.Add(1)
			writeJSON(w, http.StatusOK, testMoods)
		case "/activity-suggestions/":
			if got := r.URL.Query().Get("mood_id"); got != "2" {
				t.Errorf("mood_id = %q, want 2", got)
			}
			writeJSON(w, http.StatusOK, []ActivitySuggestion{{ID: 1, MoodID: 2, Suggestion: []string{"Go for a walk", " "}}})
		case "/relaxation-activities/":
			writeJSON(w, http.StatusOK, []RelaxationActivity{{ID: 1, MoodID: 2, Activity: []string{"Stretch"}}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	c := New(srv.URL)
	ctx := context.Background()

	acts, err := c.Activities(ctx, "sad")
	if err != nil {
		t.Fatalf("Activities() error = %v", err)
	}
	if !reflect.DeepEqual(acts, []string{"Go for a walk"}) {
		t.Errorf("Activities() = %v", acts)
	}

	relax, err := c.Relaxations(ctx, "Sad")
	if err != nil {
		t.Fatalf("Relaxations() error = %v", err)
	}
	if !reflect.DeepEqual(relax, []string{"Stretch"}) {
		t.Errorf("Relaxations() = %v", relax)
	}

	if got := moodCalls.Load(); got != 1 {
		t.Errorf("moods requests = %d, want 1 (cached)", got)
	}

	if _, err := c.Activities(ctx, "Bored"); !errkind.Is(err, errkind.UnsupportedMood) {
		t.Errorf("Activities(unknown) error = %v, want UnsupportedMood", err)
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
		wantMsg  string
	}{
		{"error field", http.StatusUnauthorized, `{"error":"Invalid credentials"}`, errkind.Unauthenticated, "Invalid credentials"},
		{"detail field", http.StatusForbidden, `{"detail":"Authentication credentials were not provided."}`, errkind.Unauthenticated, "Authentication credentials were not provided."},
		{"non field errors", http.StatusBadRequest, `{"non_field_errors":["Bad pair","Try again"]}`, errkind.Rejected, "Bad pair Try again"},
		{"field lists", http.StatusBadRequest, `{"password":["Too short"],"email":["Required"]}`, errkind.Rejected, "email: Required; password: Too short"},
		{"message field", http.StatusServiceUnavailable, `{"message":"down"}`, errkind.NetworkFailure, "down"},
		{"plain text", http.StatusBadGateway, `upstream gone`, errkind.NetworkFailure, "upstream gone"},
		{"rate limited", http.StatusTooManyRequests, `{}`, errkind.NetworkFailure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			c := New(srv.URL)
			_, err := c.Login(context.Background(), "a@b.c", "pw")
			if !errkind.Is(err, tt.wantKind) {
				t.Fatalf("Login() error = %v, want kind %v", err, tt.wantKind)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Login() error = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.wantMsg {
				t.Errorf("APIError = {%d %q}, want {%d %q}", apiErr.Status, apiErr.Message, tt.status, tt.wantMsg)
			}
		})
	}
}

func TestTransportFailureIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithTimeout(time.Second))
	if _, err := c.Moods(context.Background()); !errkind.Is(err, errkind.NetworkFailure) {
		t.Errorf("Moods() error = %v, want NetworkFailure", err)
	}
}

func TestExecutorRetriesReads(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, []MoodCount{{Name: "Happy", Count: 4}})
	})

	policy := resilience.DefaultPolicy()
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = time.Millisecond
	exec := resilience.NewExecutor(policy, resilience.WithLogger(logging.Discard()))

	c := New(srv.URL, WithExecutor(exec))
	got, err := c.TopMoods(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopMoods() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Happy" {
		t.Errorf("TopMoods() = %v", got)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestLoginAndContextToken(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "dee@example.com" {
				t.Errorf("email = %q", body["email"])
			}
			writeJSON(w, http.StatusOK, LoginResult{User: User{ID: 7, Email: "dee@example.com", Username: "dee"}, Token: "user-token"})
		case "/dashboard/top-moods/":
			if got := r.Header.Get("Authorization"); got != "Token user-token" {
				t.Errorf("Authorization = %q, want context token", got)
			}
			writeJSON(w, http.StatusOK, []MoodCount{})
		}
	})

	c := New(srv.URL, WithToken("service-token"))
	res, err := c.Login(context.Background(), "dee@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Token != "user-token" || res.User.ID != 7 {
		t.Errorf("Login() = %+v", res)
	}

	ctx := ContextWithToken(context.Background(), res.Token)
	if _, err := c.TopMoods(ctx, 0); err != nil {
		t.Fatalf("TopMoods() error = %v", err)
	}
}

func TestUploadCapture(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if got := r.FormValue("mood"); got != "Happy" {
			t.Errorf("mood = %q, want Happy", got)
		}
		if got := r.FormValue("user"); got != "7" {
			t.Errorf("user = %q, want 7", got)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("FormFile(image) error = %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "pngbytes" || hdr.Header.Get("Content-Type") != "image/png" {
			t.Errorf("image = %q (%s)", data, hdr.Header.Get("Content-Type"))
		}
		writeJSON(w, http.StatusCreated, CapturedImage{ID: 3, Image: "/media/capture.png", Mood: "Happy"})
	})

	c := New(srv.URL)
	got, err := c.UploadCapture(context.Background(), Capture{Image: []byte("pngbytes"), ContentType: "image/png", Mood: "Happy", UserID: 7})
	if err != nil {
		t.Fatalf("UploadCapture() error = %v", err)
	}
	if got.ID != 3 {
		t.Errorf("UploadCapture().ID = %d, want 3", got.ID)
	}
}
