package mood

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/justestif/go-moodtunes/internal/capture"
	"github.com/justestif/go-moodtunes/internal/detection"
	"github.com/justestif/go-moodtunes/internal/errkind"
)

// Scan cadence defaults: ten samples, one per second.
const (
	DefaultInterval = time.Second
	DefaultWindow   = 10 * time.Second
)

// Scanner samples a capture source on a fixed interval for an observation
// window, running detection on each frame.
type Scanner struct {
	source   capture.Source
	detector detection.Detector
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
	observe  func(Sample)
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWindow sets the observation window.
func WithWindow(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithObserver registers a callback invoked with every sample as it is taken.
func WithObserver(fn func(Sample)) ScannerOption {
	return func(s *Scanner) {
		s.observe = fn
	}
}

// WithScanLogger sets the logger.
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a Scanner.
func NewScanner(source capture.Source, detector detection.Detector, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		source:   source,
		detector: detector,
		interval: DefaultInterval,
		window:   DefaultWindow,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan samples until the window elapses or ctx is cancelled. A camera
// failure or model load failure ends the scan early with that error. Frames
// that are missing or fail inference are kept as samples carrying Err, so
// callers can tell absence of a face from absence of a frame.
//
// On cancellation Scan returns the samples taken so far and ctx.Err(); no
// detection runs after ctx is done.
func (s *Scanner) Scan(ctx context.Context) ([]Sample, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.window)
	defer deadline.Stop()

	var samples []Sample
	for {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		case <-deadline.C:
			return samples, nil
		case <-ticker.C:
		}

		sample, err := s.sample(ctx)
		if err != nil {
			return samples, err
		}
		samples = append(samples, sample)
		if s.observe != nil {
			s.observe(sample)
		}
	}
}

func (s *Scanner) sample(ctx context.Context) (Sample, error) {
	frame, err := s.source.RequestFrame(ctx)
	switch {
	case ctx.Err() != nil:
		return Sample{}, ctx.Err()
	case errkind.Is(err, errkind.CameraUnavailable):
		return Sample{}, err
	case err != nil:
		return Sample{At: time.Now(), Err: err}, nil
	}

	faces, err := s.detector.Detect(ctx, frame)
	switch {
	case ctx.Err() != nil:
		return Sample{}, ctx.Err()
	case errkind.Is(err, errkind.ModelLoadFailure) && !errors.Is(err, detection.ErrInference):
		return Sample{}, err
	case err != nil:
		s.logger.Debug("sample_detection_failed", "error", err)
		return Sample{At: frame.CapturedAt, Err: err}, nil
	}
	return Sample{At: frame.CapturedAt, Faces: faces}, nil
}
