// Package playlist saves a suggestion set as a private playlist on the music
// service and reads its track listing back for display.
package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
	"github.com/justestif/go-moodtunes/internal/resilience"
	"github.com/justestif/go-moodtunes/internal/session"
)

// DefaultAppName prefixes generated playlist names.
const DefaultAppName = "MoodTunes"

const dateLayout = "Jan 2, 2006"

// Library is the music-service surface the persister needs.
type Library interface {
	UserID(ctx context.Context) (string, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (id, url string, err error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
	PlaylistTracks(ctx context.Context, playlistID string) ([]music.Track, error)
}

// Record is a saved playlist handed to a Recorder.
type Record struct {
	SpotifyID string
	UserID    string
	Name      string
	Mood      mood.Label
	TrackIDs  []string
}

// Recorder keeps a history of saved playlists.
type Recorder interface {
	RecordPlaylist(ctx context.Context, rec Record) error
}

// Persister saves playlists for one session.
type Persister struct {
	library  Library
	store    session.Store
	appName  string
	now      func() time.Time
	executor *resilience.Executor
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Persister.
type Option func(*Persister)

// WithAppName sets the generated name prefix.
func WithAppName(name string) Option {
	return func(p *Persister) {
		if name != "" {
			p.appName = name
		}
	}
}

// WithClock sets the time source used for generated names.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// WithExecutor sets the executor used to retry the listing read.
func WithExecutor(e *resilience.Executor) Option {
	return func(p *Persister) {
		if e != nil {
			p.executor = e
		}
	}
}

// WithRecorder records saved playlists.
func WithRecorder(r Recorder) Option {
	return func(p *Persister) {
		p.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPersister creates a Persister.
func NewPersister(library Library, store session.Store, opts ...Option) *Persister {
	p := &Persister{
		library: library,
		store:   store,
		appName: DefaultAppName,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		p.executor = resilience.NewExecutor(resilience.DefaultPolicy(), resilience.WithLogger(p.logger))
	}
	return p
}

// DefaultName returns "<AppName> - <Mood> Playlist (<date>)" for today.
func (p *Persister) DefaultName(m mood.Label) string {
	return fmt.Sprintf("%s - %s Playlist (%s)", p.appName, m, p.now().Format(dateLayout))
}

// Save creates a private playlist holding tracks and returns it with its
// listing re-read from the service.
//
// When creation succeeds but the listing read fails, the returned playlist
// carries its ID and URL with no tracks, and the error is
// PlaylistFetchFailure; Tracks can be retried without re-creating anything.
// An expired authorization at any step clears the stored token.
func (p *Persister) Save(ctx context.Context, m mood.Label, tracks []music.Track, name string) (*music.Playlist, error) {
	if name == "" {
		name = p.DefaultName(m)
	}

	userID, err := p.library.UserID(ctx)
	if err != nil {
		return nil, p.fail(ctx, "getting current user", err)
	}

	description := fmt.Sprintf("Songs for a %s mood, picked by %s.", m, p.appName)
	id, url, err := p.library.CreatePlaylist(ctx, userID, name, description, false)
	if err != nil {
		return nil, p.fail(ctx, "creating playlist", err)
	}
	pl := &music.Playlist{ID: id, Name: name, Mood: string(m), URL: url, Tracks: []music.Track{}}

	ids := trackIDs(tracks)
	if err := p.library.AddTracks(ctx, id, ids); err != nil {
		// The playlist exists server-side; it is not rolled back.
		return pl, p.fail(ctx, "adding tracks", err)
	}

	p.logger.Info("playlist created", "playlist_id", id, "mood", m, "tracks", len(ids))

	if p.recorder != nil {
		rec := Record{SpotifyID: id, UserID: userID, Name: name, Mood: m, TrackIDs: ids}
		if err := p.recorder.RecordPlaylist(ctx, rec); err != nil {
			p.logger.Warn("recording playlist history", "playlist_id", id, "error", err)
		}
	}

	listing, err := p.Tracks(ctx, id)
	if err != nil {
		return pl, err
	}
	pl.Tracks = listing
	return pl, nil
}

// Tracks re-reads a playlist's track listing, retrying transient failures.
func (p *Persister) Tracks(ctx context.Context, playlistID string) ([]music.Track, error) {
	listing, err := resilience.Do(ctx, p.executor, "playlist.tracks", func(ctx context.Context) ([]music.Track, error) {
		return p.library.PlaylistTracks(ctx, playlistID)
	})
	if err != nil {
		if errkind.Is(err, errkind.AuthorizationExpired) {
			p.clearToken(ctx)
			return nil, err
		}
		if errkind.Is(err, errkind.Unauthenticated) {
			return nil, err
		}
		return nil, errkind.Wrap(errkind.PlaylistFetchFailure, "listing playlist "+playlistID, err)
	}
	if listing == nil {
		listing = []music.Track{}
	}
	return listing, nil
}

// fail maps a save-step error: authorization problems pass through (clearing
// an expired token), everything else becomes PlaylistCreateFailure.
func (p *Persister) fail(ctx context.Context, op string, err error) error {
	switch {
	case errkind.Is(err, errkind.AuthorizationExpired):
		p.clearToken(ctx)
		return err
	case errkind.Is(err, errkind.Unauthenticated):
		return err
	default:
		return errkind.Wrap(errkind.PlaylistCreateFailure, op, err)
	}
}

func (p *Persister) clearToken(ctx context.Context) {
	if err := session.ClearToken(context.WithoutCancel(ctx), p.store); err != nil {
		p.logger.Error("clearing expired token", "error", err)
	}
}

func trackIDs(tracks []music.Track) []string {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
