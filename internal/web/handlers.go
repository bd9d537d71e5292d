package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/go-moodtunes/internal/auth"
	"github.com/justestif/go-moodtunes/internal/backend"
	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/pipeline"
	"github.com/justestif/go-moodtunes/internal/session"
)

// maxFrameBytes bounds uploaded camera frames.
const maxFrameBytes = 4 << 20

// Authenticator builds the music-service authorize URL.
type Authenticator interface {
	AuthURL(state string) string
}

// Account is the backend's account and dashboard API.
type Account interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	TopMoods(ctx context.Context, limit int) ([]backend.MoodCount, error)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      Authenticator
	sessions  *SessionManager
	templates *Templates
	profiles  mood.Profiles
	account   Account
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance. account may be nil, which
// disables backend login and stats.
func NewHandlers(a Authenticator, sessions *SessionManager, templates *Templates, profiles mood.Profiles, account Account, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		auth:      a,
		sessions:  sessions,
		templates: templates,
		profiles:  profiles,
		account:   account,
		logger:    logger,
		now:       time.Now,
	}
}

// pipeline returns the request's pipeline, writing an error response when
// the session cannot be opened.
func (h *Handlers) pipeline(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	p, err := h.sessions.FromRequest(w, r)
	if err != nil {
		h.logger.Error("session_open_failed", "error", err)
		writeError(w, err)
		return nil, false
	}
	return p, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid json")
		return false
	}
	return true
}

// readImage reads a frame from a raw image body or a multipart "image"
// field.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var src io.Reader = r.Body
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("image")
		if err != nil {
			writeBadRequest(w, "multipart field 'image' is required")
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("reading image: %v", err))
		return nil, false
	}
	return data, true
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	data := HomePageData{
		PageData: PageData{
			Title:       "MoodTunes",
			CurrentPath: r.URL.Path,
		},
		Authenticated: session.HasToken(r.Context(), p.Store),
		Moods:         h.profiles,
		Capabilities:  p.Capabilities(),
	}
	if u, err := session.CachedUser(r.Context(), p.Store); err == nil && u != nil {
		data.User = &UserData{ID: strconv.Itoa(u.ID), Name: u.Username}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		h.logger.Error("template_render_failed", "page", "home", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// Login starts the implicit-grant flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}
	if err := p.Store.Set(r.Context(), session.KeyOAuthState, state); err != nil {
		h.logger.Error("oauth_state_store_failed", "error", err)
		http.Error(w, "Failed to store state", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback serves the page that hands the URL fragment to Token
// (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Signing in", CurrentPath: r.URL.Path}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "callback", data); err != nil {
		h.logger.Error("template_render_failed", "page", "callback", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// Token verifies the fragment's state and stores its token
// (POST /auth/token).
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	p := h.sessions.Existing(r)
	if p == nil {
		writeBadRequest(w, "no session; start the login again")
		return
	}

	var req struct {
		Fragment string `json:"fragment"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	want, _, err := p.Store.Get(ctx, session.KeyOAuthState)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = p.Store.Delete(ctx, session.KeyOAuthState)

	tok, err := auth.Callback(req.Fragment, want, h.now())
	switch {
	case errors.Is(err, auth.ErrAccessDenied):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Kind: "access_denied", Message: "Sign-in was cancelled."}})
		return
	case err != nil:
		writeBadRequest(w, err.Error())
		return
	}

	if err := session.SetToken(ctx, p.Store, tok); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Logout stops the session's pipeline and forgets it (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if p := h.sessions.Existing(r); p != nil {
		if err := p.Logout(r.Context()); err != nil {
			h.logger.Warn("logout_incomplete", "error", err)
		}
	}
	if err := h.sessions.End(w, r); err != nil {
		h.logger.Warn("session_remove_failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// BackendLogin signs in to the backend and caches the user
// (POST /api/login).
func (h *Handlers) BackendLogin(w http.ResponseWriter, r *http.Request) {
	if h.account == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: "backend is not configured"}})
		return
	}
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	ctx := r.Context()
	res, err := h.account.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	user := session.User{ID: res.User.ID, Email: res.User.Email, Username: res.User.Username}
	if err := session.SetCachedUser(ctx, p.Store, user); err != nil {
		writeError(w, err)
		return
	}
	if err := p.Store.Set(ctx, session.KeyBackendToken, res.Token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type moodView struct {
	Mood  mood.Label `json:"mood"`
	Color string     `json:"color"`
}

// Moods lists supported moods with display colors (GET /api/moods).
func (h *Handlers) Moods(w http.ResponseWriter, _ *http.Request) {
	out := make([]moodView, 0, len(h.profiles))
	for _, prof := range h.profiles {
		out = append(out, moodView{Mood: prof.Mood, Color: prof.Color})
	}
	writeJSON(w, http.StatusOK, out)
}

// Status reports the pipeline state (GET /api/status).
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Status(r.Context()))
}

// DismissError clears the overlay notice (DELETE /api/status/error).
func (h *Handlers) DismissError(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	p.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

// Frame accepts a live camera frame (POST /api/frames).
func (h *Handlers) Frame(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	data, ok := readImage(w, r)
	if !ok {
		return
	}
	if err := p.PushFrame(data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CameraError records a browser camera failure (POST /api/camera/error).
func (h *Handlers) CameraError(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeError(w, p.CameraFailed(req.Name))
}

// StartScan begins continuous detection (POST /api/scan).
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	started := p.StartScan()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started, "in_progress": true})
}

// StopScan tears the camera down (DELETE /api/scan).
func (h *Handlers) StopScan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	p.StopCamera()
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot resolves one still and fetches suggestions (POST /api/snapshot).
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	data, ok := readImage(w, r)
	if !ok {
		return
	}

	res, err := p.Snapshot(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ManualMood picks a mood by hand (POST /api/mood).
func (h *Handlers) ManualMood(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	var req struct {
		Mood string `json:"mood"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := p.ManualMood(r.Context(), req.Mood)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Suggestions returns the current bundle (GET /api/suggestions).
func (h *Handlers) Suggestions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	bundle, ok := p.Suggestions()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// SuggestionsPartial renders the current bundle as an HTML fragment
// (GET /partials/suggestions).
func (h *Handlers) SuggestionsPartial(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	bundle, ok := p.Suggestions()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, "suggestions", bundle); err != nil {
		h.logger.Error("template_render_failed", "partial", "suggestions", "error", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// RefreshSuggestions fetches a new bundle for the current mood
// (POST /api/suggestions/refresh).
func (h *Handlers) RefreshSuggestions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	bundle, err := p.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// TogglePlayback plays or pauses a preview (POST /api/playback/{trackID}).
func (h *Handlers) TogglePlayback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	tr, err := p.Toggle(r.Context(), chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// SavePlaylist saves the current suggestions (POST /api/playlists). When
// the playlist exists but a later step failed, the response carries both
// the playlist and the error.
func (h *Handlers) SavePlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	pl, err := p.SavePlaylist(r.Context(), strings.TrimSpace(req.Name))
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, pl)
	case pl != nil:
		writeJSON(w, statusFor(err), map[string]any{
			"playlist": pl,
			"error":    errorDetail{Kind: errkind.Name(err), Message: errkind.Message(err)},
		})
	default:
		writeError(w, err)
	}
}

// PlaylistTracks re-reads a saved playlist's listing
// (GET /api/playlists/{id}/tracks).
func (h *Handlers) PlaylistTracks(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	tracks, err := p.RefreshPlaylist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// Playlists lists saved playlists (GET /api/playlists).
func (h *Handlers) Playlists(w http.ResponseWriter, r *http.Request) {
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	list, err := p.SavedPlaylists(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]savedPlaylist, 0, len(list))
	for _, pl := range list {
		out = append(out, savedPlaylist{
			ID:         pl.SpotifyID,
			Name:       pl.Name,
			Mood:       pl.Mood,
			TrackCount: len(pl.TrackIDs),
			CreatedAt:  pl.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type savedPlaylist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Mood       string    `json:"mood"`
	TrackCount int       `json:"track_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// TopMoods passes the backend's dashboard stat through
// (GET /api/stats/top-moods).
func (h *Handlers) TopMoods(w http.ResponseWriter, r *http.Request) {
	if h.account == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: "backend is not configured"}})
		return
	}
	p, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if tok, ok, err := p.Store.Get(ctx, session.KeyBackendToken); err == nil && ok {
		ctx = backend.ContextWithToken(ctx, tok)
	}
	counts, err := h.account.TopMoods(ctx, queryInt(r, "limit", 5))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Healthz reports liveness (GET /healthz).
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
