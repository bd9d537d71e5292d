package backend

import (
	"context"
	"net/url"
	"strconv"
)

// Login exchanges credentials for a backend token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}

	var out LoginResult
	if err := c.postJSON(ctx, "login", "login/", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopMoods returns the most captured moods, most frequent first.
func (c *Client) TopMoods(ctx context.Context, limit int) ([]MoodCount, error) {
	if limit <= 0 {
		limit = 5
	}
	path := "dashboard/top-moods/?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()

	var out []MoodCount
	if err := c.getJSON(ctx, "top moods", path, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []MoodCount{}
	}
	return out, nil
}
