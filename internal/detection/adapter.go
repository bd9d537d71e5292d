package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justestif/go-moodtunes/internal/capture"
	"github.com/justestif/go-moodtunes/internal/errkind"
)

// DefaultPollInterval is how often Start re-checks a loading model.
const DefaultPollInterval = 500 * time.Millisecond

// ErrInference is returned when the model process fails on a frame.
var ErrInference = fmt.Errorf("%w: inference failed", errkind.ModelLoadFailure)

// Model is the inference backend behind an Adapter.
type Model interface {
	Status(ctx context.Context) (Status, error)
	Infer(ctx context.Context, frame capture.Frame) ([]Face, error)
}

// Prefilter cheaply decides whether a frame can contain a face at all.
type Prefilter interface {
	HasFace(frame capture.Frame) (bool, error)
}

type loadState int32

const (
	stateLoading loadState = iota
	stateReady
	stateFailed
)

// Adapter implements Detector on top of a Model. Model assets load
// asynchronously after Start; until then Detect reports ModelNotReady.
type Adapter struct {
	model     Model
	prefilter Prefilter
	poll      time.Duration
	logger    *slog.Logger

	state   atomic.Int32
	mu      sync.Mutex
	loadErr error
	calls   atomic.Int64
	started atomic.Bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPrefilter skips inference for frames the prefilter rejects.
func WithPrefilter(p Prefilter) Option {
	return func(a *Adapter) {
		a.prefilter = p
	}
}

// WithPollInterval sets the readiness polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an Adapter. Call Start to begin loading.
func NewAdapter(model Model, opts ...Option) *Adapter {
	a := &Adapter{
		model:  model,
		poll:   DefaultPollInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start polls the model until it reports ready or a load error, in the
// background. It returns immediately; calling it twice has no effect.
func (a *Adapter) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.load(ctx)
}

func (a *Adapter) load(ctx context.Context) {
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		st, err := a.model.Status(ctx)
		switch {
		case err == nil && st.Ready:
			a.state.Store(int32(stateReady))
			a.logger.Info("model_ready")
			return
		case err == nil && st.Error != "":
			a.fail(errors.New(st.Error))
			return
		case err != nil:
			a.logger.Debug("model_status_unavailable", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Adapter) fail(err error) {
	a.mu.Lock()
	a.loadErr = err
	a.mu.Unlock()
	a.state.Store(int32(stateFailed))
	a.logger.Error("model_load_failed", "error", err)
}

// Ready reports whether the model has finished loading.
func (a *Adapter) Ready() bool {
	return loadState(a.state.Load()) == stateReady
}

// LoadErr returns the load failure, if loading failed.
func (a *Adapter) LoadErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadErr
}

// Calls returns how many frames reached Detect while the model was ready.
func (a *Adapter) Calls() int64 {
	return a.calls.Load()
}

// Detect implements Detector.
func (a *Adapter) Detect(ctx context.Context, frame capture.Frame) ([]Face, error) {
	switch loadState(a.state.Load()) {
	case stateLoading:
		return nil, errkind.New(errkind.ModelNotReady, "detect")
	case stateFailed:
		return nil, errkind.Wrap(errkind.ModelLoadFailure, "detect", a.LoadErr())
	}
	a.calls.Add(1)

	if a.prefilter != nil {
		ok, err := a.prefilter.HasFace(frame)
		if err != nil {
			a.logger.Debug("prefilter_failed", "error", err)
		} else if !ok {
			return []Face{}, nil
		}
	}

	faces, err := a.model.Infer(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if faces == nil {
		faces = []Face{}
	}
	return faces, nil
}

var _ Detector = (*Adapter)(nil)
