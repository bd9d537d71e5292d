// Package uploads sends captured snapshots to the backend in the background
// so a slow upload never delays suggestions.
package uploads

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/justestif/go-moodtunes/internal/backend"
)

// Defaults.
const (
	DefaultConcurrency = 2
	DefaultQueueSize   = 32
	DefaultTimeout     = 30 * time.Second
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("upload queue closed")

// ErrQueueFull is returned by Enqueue when the queue has no room.
var ErrQueueFull = errors.New("upload queue full")

// Client uploads one capture.
type Client interface {
	UploadCapture(ctx context.Context, capture backend.Capture) (*backend.CapturedImage, error)
}

// Recorder receives upload outcomes.
type Recorder interface {
	RecordUpload(err error)
}

// Job is one queued upload.
type Job struct {
	Capture backend.Capture
	// Token is the user's backend token; empty uses the client default.
	Token string
}

// Queue is a fixed-size worker pool draining upload jobs.
type Queue struct {
	client      Client
	concurrency int
	timeout     time.Duration
	recorder    Recorder
	logger      *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithConcurrency sets the number of upload workers.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithQueueSize sets how many jobs may wait.
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.jobs = make(chan Job, n)
		}
	}
}

// WithTimeout bounds each upload.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(q *Queue) {
		q.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a Queue and starts its workers. Workers stop when ctx is
// cancelled or after Close drains the queue.
func New(ctx context.Context, client Client, opts ...Option) *Queue {
	q := &Queue{
		client:      client,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
		jobs:        make(chan Job, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(q)
	}

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(ctx)
		}()
	}
	return q
}

// Enqueue schedules job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.logger.Warn("dropping capture upload", "mood", job.Capture.Mood, "reason", "queue full")
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.upload(ctx, job)
		}
	}
}

func (q *Queue) upload(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if job.Token != "" {
		ctx = backend.ContextWithToken(ctx, job.Token)
	}

	start := time.Now()
	rec, err := q.client.UploadCapture(ctx, job.Capture)
	if q.recorder != nil {
		q.recorder.RecordUpload(err)
	}
	if err != nil {
		q.logger.Warn("capture upload failed", "mood", job.Capture.Mood, "error", err)
		return
	}
	q.logger.Info("capture uploaded",
		"capture_id", rec.ID,
		"mood", job.Capture.Mood,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
