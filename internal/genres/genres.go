// Package genres maps a mood to its ordered candidate genres. The mapping is
// read from the backend once and then served from memory; when the backend
// cannot be reached, or has nothing for a mood, the built-in table is used
// and the backend is asked again after a pause.
package genres

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/mood"
)

// Defaults.
const (
	DefaultLoadTimeout = 5 * time.Second
	DefaultRetryAfter  = 30 * time.Second
)

// Source provides the backend mood to genre mapping.
type Source interface {
	MoodGenres(ctx context.Context) (map[string][]string, error)
}

// Lookup resolves genres for a mood. One Lookup is shared by every session.
type Lookup struct {
	source      Source
	fallback    map[mood.Label][]string
	loadTimeout time.Duration
	retryAfter  time.Duration
	now         func() time.Time
	logger      *slog.Logger

	loadMu sync.Mutex // serializes backend reads

	mu      sync.RWMutex
	backend map[string][]string // keyed by lowercased mood name
	retryAt time.Time
}

// Option configures a Lookup.
type Option func(*Lookup)

// WithLoadTimeout bounds the backend read.
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Lookup) {
		if d > 0 {
			l.loadTimeout = d
		}
	}
}

// WithRetryAfter sets how long the fallback table is served after a failed
// backend read before the backend is asked again.
func WithRetryAfter(d time.Duration) Option {
	return func(l *Lookup) {
		if d > 0 {
			l.retryAfter = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Lookup) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lookup) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Lookup. source may be nil, in which case only the fallback
// table is used.
func New(source Source, fallback map[mood.Label][]string, opts ...Option) *Lookup {
	l := &Lookup{
		source:      source,
		fallback:    fallback,
		loadTimeout: DefaultLoadTimeout,
		retryAfter:  DefaultRetryAfter,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GenresFor returns the ordered genre candidates for m. It fails only with
// NoGenresForMood, when neither the backend nor the fallback table has any.
func (l *Lookup) GenresFor(ctx context.Context, m mood.Label) ([]string, error) {
	backend := l.load(ctx)

	if list := backend[strings.ToLower(string(m))]; len(list) > 0 {
		return append([]string(nil), list...), nil
	}
	if list := l.fallback[m]; len(list) > 0 {
		return append([]string(nil), list...), nil
	}
	return nil, errkind.New(errkind.NoGenresForMood, "genres for "+string(m))
}

// FromBackend reports whether backend data was loaded.
func (l *Lookup) FromBackend() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.backend != nil
}

// cached returns the loaded mapping. ok is false when the backend should be
// read, i.e. nothing is loaded and no failure is being waited out.
func (l *Lookup) cached() (backend map[string][]string, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.backend != nil {
		return l.backend, true
	}
	return nil, l.now().Before(l.retryAt)
}

// load returns the backend mapping, reading it when needed. The read is
// detached from the caller's cancellation and bounded by the load timeout.
// Only a successful read is kept; after a failure the fallback table is
// served for retryAfter.
func (l *Lookup) load(ctx context.Context) map[string][]string {
	if l.source == nil {
		return nil
	}
	if backend, ok := l.cached(); ok {
		return backend
	}

	l.loadMu.Lock()
	defer l.loadMu.Unlock()
	if backend, ok := l.cached(); ok {
		return backend
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
	defer cancel()

	raw, err := l.source.MoodGenres(ctx)
	if err != nil {
		l.mu.Lock()
		l.retryAt = l.now().Add(l.retryAfter)
		l.mu.Unlock()
		l.logger.Warn("genre lookup falling back to built-in table",
			"error", err,
			"retry_in", l.retryAfter,
		)
		return nil
	}

	backend := make(map[string][]string, len(raw))
	for name, list := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		for _, g := range list {
			if g = strings.TrimSpace(g); g != "" {
				backend[key] = append(backend[key], g)
			}
		}
	}

	l.mu.Lock()
	l.backend = backend
	l.mu.Unlock()
	return backend
}
