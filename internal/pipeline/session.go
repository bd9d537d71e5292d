// Package pipeline runs the mood-to-music flow for one browser session.
//
// A Session owns the frame buffer, the scan cancel func, the current
// suggestion bundle and the playback state. At most one detection/fetch
// cycle runs at a time; triggers that arrive while a cycle is in flight are
// dropped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-moodtunes/internal/backend"
	"github.com/justestif/go-moodtunes/internal/capture"
	"github.com/justestif/go-moodtunes/internal/db"
	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
	"github.com/justestif/go-moodtunes/internal/playback"
	"github.com/justestif/go-moodtunes/internal/recommend"
	"github.com/justestif/go-moodtunes/internal/session"
	"github.com/justestif/go-moodtunes/internal/uploads"
)

var (
	// ErrInProgress is returned by triggers dropped because a cycle is
	// already running.
	ErrInProgress = errors.New("a detection cycle is already in progress")

	// ErrManualOverrideDisabled is returned by ManualMood when the session
	// does not offer manual mood selection.
	ErrManualOverrideDisabled = fmt.Errorf("%w: manual mood selection is disabled", errkind.Rejected)

	// ErrNothingToSave is returned by SavePlaylist before any suggestions
	// exist.
	ErrNothingToSave = fmt.Errorf("%w: no suggestions to save", errkind.Rejected)

	// ErrNoMood is returned by Refresh before a mood has been resolved.
	ErrNoMood = fmt.Errorf("%w: no mood resolved yet", errkind.Rejected)

	// ErrNoHistory is returned by SavedPlaylists when no database is
	// configured.
	ErrNoHistory = errors.New("playlist history is not enabled")

	// ErrUnknownTrack is returned by Toggle for a track not on screen.
	ErrUnknownTrack = fmt.Errorf("%w: track is not in the current suggestions", errkind.Rejected)
)

// Capabilities switches optional behaviour of a session.
type Capabilities struct {
	// ManualOverride lets the user pick a mood instead of detecting one.
	ManualOverride bool `json:"manual_override"`
	// ErrorOverlay keeps the last background failure visible in Status.
	ErrorOverlay bool `json:"error_overlay"`
}

// DefaultCapabilities enables everything.
func DefaultCapabilities() Capabilities {
	return Capabilities{ManualOverride: true, ErrorOverlay: true}
}

// GenreLookup maps a mood to its candidate genres.
type GenreLookup interface {
	GenresFor(ctx context.Context, m mood.Label) ([]string, error)
}

// Fetcher runs one recommendation fetch cycle.
type Fetcher interface {
	Fetch(ctx context.Context, req recommend.Request) (recommend.Bundle, error)
}

// Persister saves suggestions as a playlist and re-reads its listing.
type Persister interface {
	Save(ctx context.Context, m mood.Label, tracks []music.Track, name string) (*music.Playlist, error)
	Tracks(ctx context.Context, playlistID string) ([]music.Track, error)
}

// Uploader queues captured stills for the backend.
type Uploader interface {
	Enqueue(job uploads.Job) error
}

// Account identifies the signed-in music-service user.
type Account interface {
	UserID(ctx context.Context) (string, error)
}

// History lists playlists saved by a music-service user.
type History interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]db.Playlist, error)
}

// Recorder receives detection, resolution and playlist save outcomes.
type Recorder interface {
	RecordDetection(outcome string)
	RecordResolution(strategy, outcome string)
	RecordPlaylistSave(err error)
}

// Components are the collaborators every session needs.
type Components struct {
	Store     session.Store
	Detector  detection.Detector
	Resolver  *mood.Resolver
	Profiles  mood.Profiles
	Genres    GenreLookup
	Fetcher   Fetcher
	Persister Persister
	Player    *playback.Controller

	// Account and History back SavedPlaylists. History is nil without a
	// database.
	Account Account
	History History
}

// Session is one user's pipeline.
type Session struct {
	id string
	Components

	frames   *capture.Buffer
	caps     Capabilities
	scanOpts []mood.ScannerOption
	uploader Uploader
	recorder Recorder
	logger   *slog.Logger

	busy atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	resolution *mood.Resolution
	bundle     *recommend.Bundle
	playlist   *music.Playlist
	refreshes  int
	lastErr    error
}

// Option configures a Session.
type Option func(*Session)

// WithCapabilities sets the capability set.
func WithCapabilities(c Capabilities) Option {
	return func(s *Session) {
		s.caps = c
	}
}

// WithScanOptions configures the continuous scanner.
func WithScanOptions(opts ...mood.ScannerOption) Option {
	return func(s *Session) {
		s.scanOpts = append(s.scanOpts, opts...)
	}
}

// WithFrames sets the frame buffer.
func WithFrames(b *capture.Buffer) Option {
	return func(s *Session) {
		if b != nil {
			s.frames = b
		}
	}
}

// WithUploader enables captured-image uploads after a still resolves.
func WithUploader(u Uploader) Option {
	return func(s *Session) {
		s.uploader = u
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Session.
func New(c Components, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		Components: c,
		frames:     capture.NewBuffer(),
		caps:       DefaultCapabilities(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Player == nil {
		s.Player = playback.NewController(nil)
	}
	s.logger = s.logger.With("pipeline_id", s.id)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Capabilities returns the session's capability set.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// PushFrame hands a browser frame to the buffer polled by StartScan.
func (s *Session) PushFrame(data []byte) error {
	frame, err := capture.NewFrame(data, time.Now())
	if err != nil {
		return err
	}
	s.frames.Push(frame)
	return nil
}

// CameraFailed records a browser camera failure by its DOMException name.
// A running scan ends with CameraUnavailable on its next sample.
func (s *Session) CameraFailed(name string) error {
	err := capture.ErrorFromName(name)
	s.frames.Fail(err)
	return err
}

// begin claims the in-progress guard and registers a cancel func for the
// cycle. The returned finish releases both.
func (s *Session) begin(parent context.Context) (context.Context, func(), bool) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
		s.busy.Store(false)
		close(done)
	}, true
}

// InProgress reports whether a cycle is running.
func (s *Session) InProgress() bool {
	return s.busy.Load()
}

// StartScan begins a continuous scan over the observation window in the
// background, then resolves the window and fetches suggestions. It reports
// false without doing anything if a cycle is already running.
func (s *Session) StartScan() bool {
	ctx, finish, ok := s.begin(context.Background())
	if !ok {
		s.logger.Debug("scan_trigger_ignored")
		return false
	}

	go s.scan(ctx, finish)
	return true
}

func (s *Session) scan(ctx context.Context, finish func()) {
	defer finish()

	opts := append([]mood.ScannerOption{
		mood.WithScanLogger(s.logger),
		mood.WithObserver(s.observe),
	}, s.scanOpts...)
	scanner := mood.NewScanner(s.frames, s.Detector, opts...)

	samples, err := scanner.Scan(ctx)
	if ctx.Err() != nil {
		s.logger.Info("scan_cancelled", "samples", len(samples))
		return
	}
	if err != nil {
		s.logger.Warn("scan_failed", "error", err, "kind", errkind.Name(err))
		s.setErr(err)
		return
	}

	res := s.Resolver.Resolve(samples)
	s.recordResolution(res)
	if !res.Resolved() {
		s.setUnresolved(res)
		return
	}
	if _, err := s.fetch(ctx, res, 0); err != nil && ctx.Err() == nil {
		s.logger.Warn("scan_fetch_failed", "error", err, "kind", errkind.Name(err))
	}
}

// StopCamera tears the camera down: the running cycle is cancelled, the
// call waits for it to stop and the frame buffer is emptied. No detection
// runs after StopCamera returns.
func (s *Session) StopCamera() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.frames.Reset()
}

// Result is the outcome of a synchronous cycle.
type Result struct {
	Resolution mood.Resolution   `json:"resolution"`
	Unresolved string            `json:"unresolved,omitempty"`
	Message    string            `json:"message,omitempty"`
	Bundle     *recommend.Bundle `json:"bundle,omitempty"`
}

func unresolvedResult(res mood.Resolution) Result {
	r := Result{Resolution: res}
	if errors.Is(res.Reason, mood.ErrNoFace) {
		r.Unresolved = "no_face"
		r.Message = "No face detected. Try again or pick a mood."
	} else {
		r.Unresolved = errkind.Name(res.Reason)
		r.Message = errkind.Message(res.Reason)
	}
	return r
}

// Snapshot resolves a single still and fetches suggestions for it. An
// unresolved still returns a Result without a bundle and a nil error.
func (s *Session) Snapshot(ctx context.Context, data []byte) (Result, error) {
	frame, err := capture.NewFrame(data, time.Now())
	if err != nil {
		return Result{}, err
	}

	ctx, finish, ok := s.begin(ctx)
	if !ok {
		return Result{}, ErrInProgress
	}
	defer finish()

	faces, err := s.Detector.Detect(ctx, frame)
	if err != nil {
		s.recordDetection("error")
		return Result{}, err
	}
	if len(faces) == 0 {
		s.recordDetection("no_face")
	} else {
		s.recordDetection("face")
	}

	res := s.Resolver.ResolveStill(faces)
	s.recordResolution(res)
	if !res.Resolved() {
		s.setUnresolved(res)
		return unresolvedResult(res), nil
	}

	s.upload(ctx, frame, res.Mood)

	bundle, err := s.fetch(ctx, res, 0)
	if err != nil {
		return Result{Resolution: res}, err
	}
	return Result{Resolution: res, Bundle: bundle}, nil
}

// ManualMood resolves to a user-picked mood and fetches suggestions.
func (s *Session) ManualMood(ctx context.Context, name string) (Result, error) {
	if !s.caps.ManualOverride {
		return Result{}, ErrManualOverrideDisabled
	}

	res := s.Resolver.Override(name)
	if !res.Resolved() {
		return Result{}, res.Reason
	}

	ctx, finish, ok := s.begin(ctx)
	if !ok {
		return Result{}, ErrInProgress
	}
	defer finish()

	s.recordResolution(res)
	bundle, err := s.fetch(ctx, res, 0)
	if err != nil {
		return Result{Resolution: res}, err
	}
	return Result{Resolution: res, Bundle: bundle}, nil
}

// Refresh fetches a new bundle for the current mood, starting one genre
// further along the candidate list each time. The cursor only advances when
// the refresh succeeds.
func (s *Session) Refresh(ctx context.Context) (*recommend.Bundle, error) {
	s.mu.Lock()
	res := s.resolution
	s.mu.Unlock()

	if res == nil {
		return nil, ErrNoMood
	}

	ctx, finish, ok := s.begin(ctx)
	if !ok {
		return nil, ErrInProgress
	}
	defer finish()

	s.mu.Lock()
	next := s.refreshes + 1
	s.mu.Unlock()

	return s.fetch(ctx, *res, next)
}

// fetch runs a fetch cycle for a resolved mood and, if it succeeds and the
// cycle was not aborted, replaces the bundle. Failures leave the previous
// bundle in place.
func (s *Session) fetch(ctx context.Context, res mood.Resolution, genreIndex int) (*recommend.Bundle, error) {
	genres, err := s.Genres.GenresFor(ctx, res.Mood)
	if err != nil && !errkind.Is(err, errkind.NoGenresForMood) {
		s.setErr(err)
		return nil, err
	}

	bundle, err := s.Fetcher.Fetch(ctx, recommend.Request{
		Mood:       res.Mood,
		Genres:     genres,
		Targets:    s.Profiles.TargetsFor(res.Mood),
		GenreIndex: genreIndex,
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r := res
	s.resolution = &r
	s.bundle = &bundle
	s.refreshes = genreIndex
	s.lastErr = nil
	return &bundle, nil
}

func (s *Session) upload(ctx context.Context, frame capture.Frame, m mood.Label) {
	if s.uploader == nil {
		return
	}

	job := uploads.Job{Capture: backend.Capture{
		Image:       frame.Data,
		ContentType: frame.ContentType,
		Mood:        string(m),
	}}
	if u, err := session.CachedUser(ctx, s.Store); err == nil && u != nil {
		job.Capture.UserID = u.ID
	}
	if tok, ok, err := s.Store.Get(ctx, session.KeyBackendToken); err == nil && ok {
		job.Token = tok
	}

	if err := s.uploader.Enqueue(job); err != nil {
		s.logger.Warn("capture_upload_dropped", "error", err)
	}
}

// Suggestions returns the current bundle.
func (s *Session) Suggestions() (recommend.Bundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bundle == nil {
		return recommend.Bundle{}, false
	}
	return *s.bundle, true
}

// SavePlaylist saves the current suggestions. A playlist is returned
// alongside a PlaylistFetchFailure or PlaylistCreateFailure when it exists
// server-side.
func (s *Session) SavePlaylist(ctx context.Context, name string) (*music.Playlist, error) {
	bundle, ok := s.Suggestions()
	if !ok || len(bundle.Tracks) == 0 {
		return nil, ErrNothingToSave
	}

	pl, err := s.Persister.Save(ctx, bundle.Mood, bundle.Tracks, name)
	if s.recorder != nil {
		s.recorder.RecordPlaylistSave(err)
	}
	if pl != nil {
		s.mu.Lock()
		s.playlist = pl
		s.mu.Unlock()
	}
	return pl, err
}

// RefreshPlaylist re-reads a saved playlist's listing without re-creating
// it.
func (s *Session) RefreshPlaylist(ctx context.Context, playlistID string) ([]music.Track, error) {
	tracks, err := s.Persister.Tracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.playlist != nil && s.playlist.ID == playlistID {
		s.playlist.Tracks = tracks
	}
	s.mu.Unlock()
	return tracks, nil
}

// SavedPlaylists lists the signed-in user's saved playlists, newest first.
func (s *Session) SavedPlaylists(ctx context.Context, limit int) ([]db.Playlist, error) {
	if s.History == nil || s.Account == nil {
		return nil, ErrNoHistory
	}
	userID, err := s.Account.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.History.ListForUser(ctx, userID, limit)
}

// Toggle plays or pauses the preview of a track from the current
// suggestions or the saved playlist.
func (s *Session) Toggle(ctx context.Context, trackID string) (playback.Transition, error) {
	t, ok := s.track(trackID)
	if !ok {
		return playback.Transition{}, ErrUnknownTrack
	}
	return s.Player.Toggle(ctx, t)
}

func (s *Session) track(id string) (music.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bundle != nil {
		for _, t := range s.bundle.Tracks {
			if t.ID == id {
				return t, true
			}
		}
	}
	if s.playlist != nil {
		for _, t := range s.playlist.Tracks {
			if t.ID == id {
				return t, true
			}
		}
	}
	return music.Track{}, false
}

// Status is a point-in-time view of the session.
type Status struct {
	DetectorReady bool             `json:"detector_ready"`
	Authenticated bool             `json:"authenticated"`
	InProgress    bool             `json:"in_progress"`
	Resolution    *mood.Resolution `json:"resolution,omitempty"`
	Playing       string           `json:"playing,omitempty"`
	Capabilities  Capabilities     `json:"capabilities"`
	Error         *Notice          `json:"error,omitempty"`
}

// Notice is a dismissable failure shown by the error overlay.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NoticeFor builds the overlay notice for err.
func NoticeFor(err error) *Notice {
	if err == nil {
		return nil
	}
	return &Notice{Kind: errkind.Name(err), Message: errkind.Message(err)}
}

// Status reports readiness, authentication and cycle state.
func (s *Session) Status(ctx context.Context) Status {
	st := Status{
		DetectorReady: s.Detector.Ready(),
		Authenticated: session.HasToken(ctx, s.Store),
		InProgress:    s.busy.Load(),
		Playing:       s.Player.Playing(),
		Capabilities:  s.caps,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolution != nil {
		r := *s.resolution
		st.Resolution = &r
	}
	if s.caps.ErrorOverlay {
		st.Error = NoticeFor(s.lastErr)
	}
	return st
}

// DismissError clears the overlay notice.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Logout stops the camera and playback and clears the token, the cached
// user and the suggestions.
func (s *Session) Logout(ctx context.Context) error {
	s.StopCamera()

	var errs []error
	if _, err := s.Player.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping playback: %w", err))
	}
	if err := session.ClearToken(ctx, s.Store); err != nil {
		errs = append(errs, err)
	}
	for _, key := range []string{session.KeyUser, session.KeyBackendToken} {
		if err := s.Store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", key, err))
		}
	}

	s.mu.Lock()
	s.resolution = nil
	s.bundle = nil
	s.playlist = nil
	s.refreshes = 0
	s.lastErr = nil
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Close cancels any running cycle.
func (s *Session) Close() {
	s.StopCamera()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) setUnresolved(res mood.Resolution) {
	if errors.Is(res.Reason, mood.ErrNoFace) {
		s.setErr(errkind.New(errkind.LowConfidenceDetection, "no face detected"))
		return
	}
	s.setErr(res.Reason)
}

func (s *Session) observe(sample mood.Sample) {
	switch {
	case errors.Is(sample.Err, capture.ErrNoFrame):
		s.recordDetection("no_frame")
	case sample.Err != nil:
		s.recordDetection("error")
	case len(sample.Faces) == 0:
		s.recordDetection("no_face")
	default:
		s.recordDetection("face")
	}
}

func (s *Session) recordDetection(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordDetection(outcome)
	}
}

func (s *Session) recordResolution(res mood.Resolution) {
	if s.recorder == nil {
		return
	}
	outcome := "resolved"
	switch {
	case res.Manual:
		outcome = "manual"
	case errors.Is(res.Reason, mood.ErrNoFace):
		outcome = "no_face"
	case res.Reason != nil:
		outcome = errkind.Name(res.Reason)
	}
	s.recorder.RecordResolution(string(s.Resolver.Strategy()), outcome)
}
