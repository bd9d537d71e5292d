// Package playback tracks which preview clip is playing. At most one preview
// plays at a time: starting another pauses the current one first.
package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/music"
)

// Sink performs the actual audio changes, such as the browser's audio
// element.
type Sink interface {
	Pause(ctx context.Context, trackID string) error
	Play(ctx context.Context, track music.Track) error
}

// Transition describes what a Toggle changed.
type Transition struct {
	Paused     string `json:"paused,omitempty"`
	Playing    string `json:"playing,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// Controller serializes playback changes for one session.
type Controller struct {
	sink Sink

	mu      sync.Mutex
	current string
}

// NewController creates a Controller. A nil sink only records state.
func NewController(sink Sink) *Controller {
	return &Controller{sink: sink}
}

// Playing returns the id of the playing track, or "".
func (c *Controller) Playing() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Toggle pauses t if it is playing, otherwise starts it after pausing
// whatever was playing. Tracks without a preview are rejected.
func (c *Controller) Toggle(ctx context.Context, t music.Track) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != "" && c.current == t.ID {
		if err := c.pause(ctx, c.current); err != nil {
			return Transition{}, err
		}
		tr := Transition{Paused: c.current}
		c.current = ""
		return tr, nil
	}

	if !t.HasPreview() {
		return Transition{}, errkind.Wrap(errkind.Rejected, "toggling playback", fmt.Errorf("track %q has no preview", t.ID))
	}

	var tr Transition
	if c.current != "" {
		if err := c.pause(ctx, c.current); err != nil {
			return Transition{}, err
		}
		tr.Paused = c.current
		c.current = ""
	}

	if c.sink != nil {
		if err := c.sink.Play(ctx, t); err != nil {
			return tr, fmt.Errorf("playing %s: %w", t.ID, err)
		}
	}
	c.current = t.ID
	tr.Playing = t.ID
	tr.PreviewURL = t.PreviewURL
	return tr, nil
}

// Stop pauses the playing track, if any.
func (c *Controller) Stop(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == "" {
		return Transition{}, nil
	}
	if err := c.pause(ctx, c.current); err != nil {
		return Transition{}, err
	}
	tr := Transition{Paused: c.current}
	c.current = ""
	return tr, nil
}

func (c *Controller) pause(ctx context.Context, id string) error {
	if c.sink == nil {
		return nil
	}
	if err := c.sink.Pause(ctx, id); err != nil {
		return fmt.Errorf("pausing %s: %w", id, err)
	}
	return nil
}
