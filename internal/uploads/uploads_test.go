package uploads

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justestif/go-moodtunes/internal/backend"
	"github.com/justestif/go-moodtunes/internal/logging"
)

type fakeClient struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
	err     error
	block   chan struct{}

	mu    sync.Mutex
	moods []string
}

func (c *fakeClient) UploadCapture(ctx context.Context, capture backend.Capture) (*backend.CapturedImage, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		old := c.maxSeen.Load()
		if n <= old || c.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.moods = append(c.moods, capture.Mood)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &backend.CapturedImage{ID: 1, Mood: capture.Mood}, nil
}

type countingRecorder struct {
	ok, failed atomic.Int32
}

func (r *countingRecorder) RecordUpload(err error) {
	if err != nil {
		r.failed.Add(1)
		return
	}
	r.ok.Add(1)
}

func TestQueueDrainsOnClose(t *testing.T) {
	client := &fakeClient{delay: 5 * time.Millisecond}
	rec := &countingRecorder{}
	q := New(context.Background(), client, WithConcurrency(3), WithRecorder(rec), WithLogger(logging.Discard()))

	for range 10 {
		if err := q.Enqueue(Job{Capture: backend.Capture{Mood: "Happy"}}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()

	if got := client.calls.Load(); got != 10 {
		t.Errorf("uploads = %d, want 10", got)
	}
	if got := client.maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent uploads = %d, want <= 3", got)
	}
	if rec.ok.Load() != 10 {
		t.Errorf("recorded successes = %d, want 10", rec.ok.Load())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(context.Background(), &fakeClient{}, WithLogger(logging.Discard()))
	q.Close()
	q.Close()

	if err := q.Enqueue(Job{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() error = %v, want ErrClosed", err)
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	q := New(context.Background(), client, WithConcurrency(1), WithQueueSize(1), WithLogger(logging.Discard()))

	// First job occupies the worker; wait until it is picked up.
	if err := q.Enqueue(Job{}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for client.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := q.Enqueue(Job{}); err != nil {
		t.Fatalf("Enqueue() second error = %v", err)
	}
	if err := q.Enqueue(Job{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() third error = %v, want ErrQueueFull", err)
	}

	close(client.block)
	q.Close()
}

func TestUploadFailureIsRecorded(t *testing.T) {
	client := &fakeClient{err: errors.New("backend down")}
	rec := &countingRecorder{}
	q := New(context.Background(), client, WithRecorder(rec), WithLogger(logging.Discard()))

	_ = q.Enqueue(Job{Capture: backend.Capture{Mood: "Sad"}})
	q.Close()

	if rec.failed.Load() != 1 {
		t.Errorf("recorded failures = %d, want 1", rec.failed.Load())
	}
}

func TestWorkersStopOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(ctx, &fakeClient{}, WithLogger(logging.Discard()))
	cancel()

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return after cancel")
	}
}
