// Package recommend turns a resolved mood into a suggestion bundle: up to
// five tracks from genre-seeded recommendations, plus an activity and a
// relaxation suggestion.
//
// Track fetching walks the genre candidates in order. A genre whose picks
// carry no previews, or whose request fails, moves the cursor to the next
// genre, at most MaxRetries times and never back to a genre this cycle has
// already tried. When a failing request leaves no genre to move to, a keyword
// search on the genre name is the last resort. An expired
// authorization clears the stored token and ends the cycle immediately.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
	"github.com/justestif/go-moodtunes/internal/session"
)

// Defaults.
const (
	DefaultPoolSize          = 50
	DefaultPickSize          = 5
	DefaultMaxRetries        = 2
	DefaultEnrichConcurrency = 8
)

// Catalog is the music-service surface the fetcher needs.
type Catalog interface {
	Recommendations(ctx context.Context, genre string, limit int, targets music.AudioTargets) ([]music.Track, error)
	Track(ctx context.Context, id string) (music.Track, error)
	Search(ctx context.Context, query string, limit int) ([]music.Track, error)
}

// Suggestions provides non-music suggestions for a mood.
type Suggestions interface {
	Activities(ctx context.Context, mood string) ([]string, error)
	Relaxations(ctx context.Context, mood string) ([]string, error)
}

// Recorder receives fetch metrics.
type Recorder interface {
	RecordFetchCycle(outcome string, d time.Duration)
	RecordGenreRetry(reason string)
}

// Request describes one fetch cycle.
type Request struct {
	Mood    mood.Label
	Genres  []string
	Targets music.AudioTargets

	// RetryCount and GenreIndex start the cycle part way through the
	// candidate list. Both are zero for a fresh cycle.
	RetryCount int
	GenreIndex int
}

// Fetcher runs fetch cycles against a Catalog for one session.
type Fetcher struct {
	catalog     Catalog
	suggestions Suggestions
	store       session.Store

	poolSize          int
	pickSize          int
	maxRetries        int
	enrichConcurrency int
	recorder          Recorder
	logger            *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRand sets the source used to shuffle candidates.
func WithRand(r *rand.Rand) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.rng = r
		}
	}
}

// WithPoolSize sets how many candidates are requested per genre.
func WithPoolSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.poolSize = n
		}
	}
}

// WithMaxRetries caps how many times the cursor moves to the next genre.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithEnrichConcurrency bounds concurrent track detail requests.
func WithEnrichConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.enrichConcurrency = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		f.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher. suggestions may be nil, in which case the
// fallback texts are always used.
func NewFetcher(catalog Catalog, suggestions Suggestions, store session.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		catalog:           catalog,
		suggestions:       suggestions,
		store:             store,
		poolSize:          DefaultPoolSize,
		pickSize:          DefaultPickSize,
		maxRetries:        DefaultMaxRetries,
		enrichConcurrency: DefaultEnrichConcurrency,
		logger:            slog.Default(),
		rng:               rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// attempt is the outcome of one genre or search call.
type attempt struct {
	genre  string
	tracks []music.Track
	search bool
}

func (a attempt) previews() int {
	return music.CountPreviews(a.tracks)
}

// better reports whether a should replace best as the best result so far.
func (a attempt) better(best attempt) bool {
	if a.previews() != best.previews() {
		return a.previews() > best.previews()
	}
	return len(a.tracks) > len(best.tracks)
}

// Fetch runs one cycle. On error the returned bundle carries only the mood
// and search link; callers keep their previous bundle.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Bundle, error) {
	start := time.Now()
	bundle := Bundle{Mood: req.Mood, SearchURL: SearchURL(req.Mood), Tracks: []music.Track{}}

	tok, err := session.Token(ctx, f.store)
	if err != nil {
		f.finish("failed", start)
		return bundle, fmt.Errorf("checking session token: %w", err)
	}
	if tok == nil {
		f.finish("unauthenticated", start)
		return bundle, errkind.New(errkind.Unauthenticated, "fetching suggestions")
	}
	if len(req.Genres) == 0 {
		f.finish("no_genres", start)
		return bundle, errkind.New(errkind.NoGenresForMood, "fetching suggestions for "+string(req.Mood))
	}

	sideCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	side := f.startSuggestions(sideCtx, req.Mood)

	result, attempts, err := f.fetchTracks(ctx, req)
	bundle.Attempts = attempts
	if err != nil {
		cancel()
		side.wait()
		f.finish(outcomeFor(err), start)
		return bundle, err
	}

	bundle.Genre = result.genre
	bundle.Tracks = result.tracks
	bundle.SearchFallback = result.search
	bundle.LimitedPreviews = result.previews() == 0
	if bundle.LimitedPreviews {
		bundle.Notice = LimitedPreviewsNotice
	}
	bundle.Activity, bundle.Relaxation = side.wait()

	outcome := "success"
	switch {
	case bundle.SearchFallback:
		outcome = "search_fallback"
	case bundle.LimitedPreviews:
		outcome = "limited_previews"
	}
	f.finish(outcome, start)

	f.logger.Info("fetch cycle complete",
		"mood", req.Mood,
		"genre", bundle.Genre,
		"tracks", len(bundle.Tracks),
		"previews", result.previews(),
		"attempts", attempts,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return bundle, nil
}

// fetchTracks is the genre loop. It returns the chosen attempt and the number
// of catalog calls made.
func (f *Fetcher) fetchTracks(ctx context.Context, req Request) (attempt, int, error) {
	genres := req.Genres
	retries := req.RetryCount
	idx := req.GenreIndex
	calls := 0

	var best attempt
	haveBest := false

	for {
		genre := genres[idx%len(genres)]
		tried := idx - req.GenreIndex + 1
		more := retries < f.maxRetries && tried < len(genres)

		calls++
		pool, err := f.catalog.Recommendations(ctx, genre, f.poolSize, req.Targets)
		if err != nil {
			if err := f.interrupting(ctx, err); err != nil {
				return attempt{}, calls, err
			}
			f.logger.Warn("recommendations failed",
				"genre", genre,
				"genre_index", idx%len(genres),
				"retry", retries,
				"error", err,
			)
			if more {
				f.retry("error")
				retries++
				idx++
				continue
			}

			calls++
			found, searchErr := f.search(ctx, genre)
			if searchErr == nil && len(found.tracks) > 0 {
				return found, calls, nil
			}
			if searchErr != nil {
				if err := f.interrupting(ctx, searchErr); err != nil {
					return attempt{}, calls, err
				}
			}
			if haveBest && len(best.tracks) > 0 {
				return best, calls, nil
			}
			if searchErr != nil {
				return attempt{}, calls, errkind.Wrap(errkind.NetworkFailure, "fetching tracks", errors.Join(err, searchErr))
			}
			// An empty search fails the cycle; the caller keeps its bundle.
			return attempt{}, calls, errkind.Wrap(errkind.EmptyRecommendationPool, "fetching tracks", err)
		}

		enriched, err := f.enrich(ctx, pool)
		if err != nil {
			return attempt{}, calls, err
		}
		current := attempt{genre: genre, tracks: f.pick(enriched)}
		if !haveBest || current.better(best) {
			best = current
			haveBest = true
		}

		if current.previews() > 0 {
			return current, calls, nil
		}
		if more {
			reason := "no_previews"
			if len(pool) == 0 {
				reason = "empty_pool"
			}
			f.retry(reason)
			retries++
			idx++
			continue
		}

		if len(best.tracks) > 0 {
			return best, calls, nil
		}

		// Every genre came back empty. Keyword search is the last resort.
		calls++
		found, searchErr := f.search(ctx, genre)
		if searchErr != nil {
			if err := f.interrupting(ctx, searchErr); err != nil {
				return attempt{}, calls, err
			}
			return attempt{}, calls, errkind.Wrap(errkind.EmptyRecommendationPool, "fetching tracks", searchErr)
		}
		if len(found.tracks) == 0 {
			return attempt{}, calls, errkind.New(errkind.EmptyRecommendationPool, "fetching tracks for "+string(req.Mood))
		}
		return found, calls, nil
	}
}

// search runs the keyword fallback for genre.
func (f *Fetcher) search(ctx context.Context, genre string) (attempt, error) {
	f.logger.Info("falling back to keyword search", "query", genre)

	found, err := f.catalog.Search(ctx, genre, f.poolSize)
	if err != nil {
		return attempt{}, err
	}
	enriched, err := f.enrich(ctx, found)
	if err != nil {
		return attempt{}, err
	}
	return attempt{genre: genre, tracks: f.pick(enriched), search: true}, nil
}

// interrupting returns a non-nil error when err must end the cycle instead
// of moving on: an expired authorization (which also clears the token), a
// missing token, or a cancelled context.
func (f *Fetcher) interrupting(ctx context.Context, err error) error {
	switch {
	case errkind.Is(err, errkind.AuthorizationExpired):
		if clearErr := session.ClearToken(context.WithoutCancel(ctx), f.store); clearErr != nil {
			f.logger.Error("clearing expired token", "error", clearErr)
		}
		return err
	case errkind.Is(err, errkind.Unauthenticated):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}

// enrich replaces each track with its full detail. Failures keep the summary
// data, except an expired authorization, which is returned.
func (f *Fetcher) enrich(ctx context.Context, tracks []music.Track) ([]music.Track, error) {
	out := make([]music.Track, len(tracks))
	copy(out, tracks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.enrichConcurrency)

	for i, t := range tracks {
		if t.ID == "" {
			continue
		}
		g.Go(func() error {
			full, err := f.catalog.Track(gctx, t.ID)
			if err != nil {
				if errkind.Is(err, errkind.AuthorizationExpired) {
					return err
				}
				f.logger.Debug("track enrichment failed", "track_id", t.ID, "error", err)
				return nil
			}
			out[i] = merge(t, full)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if err := f.interrupting(ctx, err); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// merge overlays full track detail on a summary, keeping summary values the
// detail lacks.
func merge(summary, full music.Track) music.Track {
	out := full
	if out.ID == "" {
		out.ID = summary.ID
	}
	if out.Title == "" {
		out.Title = summary.Title
	}
	if out.Artist == "" {
		out.Artist = summary.Artist
	}
	if out.PreviewURL == "" {
		out.PreviewURL = summary.PreviewURL
	}
	if out.ExternalURL == "" {
		out.ExternalURL = summary.ExternalURL
	}
	if out.AlbumArt == "" {
		out.AlbumArt = summary.AlbumArt
	}
	if out.URI == "" {
		out.URI = summary.URI
	}
	return out
}

func (f *Fetcher) retry(reason string) {
	if f.recorder != nil {
		f.recorder.RecordGenreRetry(reason)
	}
}

func (f *Fetcher) finish(outcome string, start time.Time) {
	if f.recorder != nil {
		f.recorder.RecordFetchCycle(outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	switch {
	case errkind.Is(err, errkind.AuthorizationExpired):
		return "reauthenticate"
	case errkind.Is(err, errkind.Unauthenticated):
		return "unauthenticated"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
