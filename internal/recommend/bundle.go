package recommend

import (
	"net/url"
	"strings"

	"github.com/justestif/go-moodtunes/internal/mood"
	"github.com/justestif/go-moodtunes/internal/music"
)

// Fallback texts used when the backend has no suggestion for a mood.
const (
	FallbackActivity   = "Explore local music"
	FallbackRelaxation = "Take a moment to breathe"
)

// LimitedPreviewsNotice is shown when the returned tracks carry no previews.
const LimitedPreviewsNotice = "Limited previews available. Refresh or open in Spotify."

const searchURLBase = "https://open.spotify.com/search/"

// Bundle is the result of one fetch cycle. A new bundle always replaces the
// previous one in full.
type Bundle struct {
	Mood       mood.Label    `json:"mood"`
	Genre      string        `json:"genre,omitempty"`
	Tracks     []music.Track `json:"tracks"`
	Activity   string        `json:"activity"`
	Relaxation string        `json:"relaxation"`

	// LimitedPreviews is set when no returned track has a preview.
	LimitedPreviews bool `json:"limited_previews"`
	// SearchFallback is set when the tracks came from keyword search.
	SearchFallback bool   `json:"search_fallback"`
	Notice         string `json:"notice,omitempty"`
	// SearchURL opens the mood in the music app.
	SearchURL string `json:"search_url"`
	// Attempts counts recommendation and search calls made.
	Attempts int `json:"attempts"`
}

// SearchURL returns the open-in-app search link for a mood.
func SearchURL(m mood.Label) string {
	return searchURLBase + url.PathEscape(strings.ToLower(string(m)))
}
