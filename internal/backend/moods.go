package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/justestif/go-moodtunes/internal/errkind"
)

// Moods lists the backend's moods. The first successful result is cached.
func (c *Client) Moods(ctx context.Context) ([]Mood, error) {
	c.moodsMu.RLock()
	if c.moods != nil {
		cached := c.moods
		c.moodsMu.RUnlock()
		return cached, nil
	}
	c.moodsMu.RUnlock()

	var moods []Mood
	if err := c.getJSON(ctx, "list moods", "moods/", &moods); err != nil {
		return nil, err
	}
	if moods == nil {
		moods = []Mood{}
	}

	c.moodsMu.Lock()
	c.moods = moods
	c.moodsMu.Unlock()

	return moods, nil
}

// MoodGenres returns the mood name to genre list mapping. Mood names are
// returned as the backend stores them.
func (c *Client) MoodGenres(ctx context.Context) (map[string][]string, error) {
	var rows []MoodGenre
	if err := c.getJSON(ctx, "list mood genres", "mood-genres/", &rows); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(rows))
	for _, row := range rows {
		if row.Mood.Name == "" {
			continue
		}
		out[row.Mood.Name] = append(out[row.Mood.Name], row.Genres...)
	}
	return out, nil
}

// Activities returns the activity suggestions for a mood.
func (c *Client) Activities(ctx context.Context, mood string) ([]string, error) {
	id, err := c.moodID(ctx, mood)
	if err != nil {
		return nil, err
	}

	var rows []ActivitySuggestion
	if err := c.getJSON(ctx, "list activity suggestions", "activity-suggestions/?"+moodQuery(id), &rows); err != nil {
		return nil, err
	}

	var out []string
	for _, row := range rows {
		out = append(out, nonEmpty(row.Suggestion)...)
	}
	return out, nil
}

// Relaxations returns the relaxation activities for a mood.
func (c *Client) Relaxations(ctx context.Context, mood string) ([]string, error) {
	id, err := c.moodID(ctx, mood)
	if err != nil {
		return nil, err
	}

	var rows []RelaxationActivity
	if err := c.getJSON(ctx, "list relaxation activities", "relaxation-activities/?"+moodQuery(id), &rows); err != nil {
		return nil, err
	}

	var out []string
	for _, row := range rows {
		out = append(out, nonEmpty(row.Activity)...)
	}
	return out, nil
}

// moodID resolves a mood name to its backend id, ignoring case.
func (c *Client) moodID(ctx context.Context, name string) (int, error) {
	moods, err := c.Moods(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range moods {
		if strings.EqualFold(m.Name, name) {
			return m.ID, nil
		}
	}
	return 0, errkind.Wrap(errkind.UnsupportedMood, "resolving mood id", fmt.Errorf("backend has no mood %q", name))
}

func moodQuery(id int) string {
	return url.Values{"mood_id": {strconv.Itoa(id)}}.Encode()
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
