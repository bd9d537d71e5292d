package capture

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxAge is how long a pushed frame stays eligible for sampling.
const DefaultMaxAge = 3 * time.Second

// Buffer holds the most recent frame pushed by the browser.
type Buffer struct {
	mu     sync.Mutex
	frame  Frame
	has    bool
	fault  error
	maxAge time.Duration
	now    func() time.Time
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithMaxAge sets how old a frame may be before RequestFrame ignores it.
func WithMaxAge(d time.Duration) BufferOption {
	return func(b *Buffer) {
		if d > 0 {
			b.maxAge = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BufferOption {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuffer creates an empty Buffer.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push stores frame as the latest frame and clears any recorded camera fault.
func (b *Buffer) Push(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = b.now()
	}
	b.frame = frame
	b.has = true
	b.fault = nil
}

// Fail records a camera failure. It is returned by RequestFrame until the
// next Push or Reset.
func (b *Buffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fault = err
	b.has = false
	b.frame = Frame{}
}

// Reset drops the held frame and any fault. Called on camera teardown.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frame = Frame{}
	b.has = false
	b.fault = nil
}

// RequestFrame returns the latest frame, the recorded camera fault, or
// ErrNoFrame when nothing fresh is held.
func (b *Buffer) RequestFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault != nil {
		return Frame{}, b.fault
	}
	if !b.has || b.now().Sub(b.frame.CapturedAt) > b.maxAge {
		return Frame{}, ErrNoFrame
	}
	return b.frame, nil
}

var _ Source = (*Buffer)(nil)
