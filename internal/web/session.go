// Package web provides the HTTP server and JSON API for MoodTunes.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/justestif/go-moodtunes/internal/pipeline"
	"github.com/justestif/go-moodtunes/internal/session"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
	sessionIDBytes    = 32
)

// PipelineFactory builds the pipeline for a session's store.
type PipelineFactory func(store session.Store) *pipeline.Session

// SessionManager maps the session cookie to a per-browser pipeline. Idle
// sessions are closed after the idle timeout; their stored values remain
// with the provider until logout or expiry.
type SessionManager struct {
	provider session.Provider
	build    PipelineFactory
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	pipeline *pipeline.Session
	lastSeen time.Time
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithIdleTimeout sets how long an unused pipeline stays in memory.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(provider session.Provider, build PipelineFactory, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		provider: provider,
		build:    build,
		idle:     time.Hour,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromRequest returns the pipeline for the request's session, starting a
// new session and setting the cookie when the request has none.
func (m *SessionManager) FromRequest(w http.ResponseWriter, r *http.Request) (*pipeline.Session, error) {
	id := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil && validSessionID(cookie.Value) {
		id = cookie.Value
	}

	if id != "" {
		if p := m.lookup(id); p != nil {
			return p, nil
		}
	} else {
		var err error
		if id, err = generateSessionID(); err != nil {
			return nil, fmt.Errorf("generating session id: %w", err)
		}
		setCookie(w, id)
	}

	return m.open(r.Context(), id)
}

// Existing returns the pipeline for the request's session without creating
// one.
func (m *SessionManager) Existing(r *http.Request) *pipeline.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || !validSessionID(cookie.Value) {
		return nil
	}
	return m.lookup(cookie.Value)
}

func (m *SessionManager) lookup(id string) *pipeline.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	e.lastSeen = m.now()
	return e.pipeline
}

func (m *SessionManager) open(ctx context.Context, id string) (*pipeline.Session, error) {
	store, err := m.provider.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request for the same cookie may have won the race.
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		return e.pipeline, nil
	}
	p := m.build(store)
	m.sessions[id] = &entry{pipeline: p, lastSeen: m.now()}
	m.logger.Debug("session_opened", "pipeline_id", p.ID())
	return p, nil
}

// End closes the request's session, removes its stored values and clears
// the cookie.
func (m *SessionManager) End(w http.ResponseWriter, r *http.Request) error {
	clearCookie(w)

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || !validSessionID(cookie.Value) {
		return nil
	}
	id := cookie.Value

	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.pipeline.Close()
	}
	return m.provider.Remove(r.Context(), id)
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were closed.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var stale []*pipeline.Session
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) && !e.pipeline.InProgress() {
			stale = append(stale, e.pipeline)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, p := range stale {
		p.Close()
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("sessions_swept", "closed", n)
			}
		}
	}
}

// CloseAll closes every open session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.pipeline.Close()
	}
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validSessionID accepts only ids generateSessionID could have produced;
// ids name files in the file-backed store.
func validSessionID(id string) bool {
	if len(id) != 2*sessionIDBytes {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// setCookie sets the session cookie on the response.
func setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// clearCookie removes the session cookie from the response.
func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
