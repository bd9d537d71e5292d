// Package music defines the track and playlist values exchanged between the
// music-service adapter and the pipeline.
package music

import "fmt"

// Track is one suggested song.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	PreviewURL  string `json:"preview_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	AlbumArt    string `json:"album_art,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// DisplayName renders "<title> by <primary artist>".
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s by %s", t.Title, t.Artist)
}

// HasPreview reports whether the track has a playable preview clip.
func (t Track) HasPreview() bool {
	return t.PreviewURL != ""
}

// CountPreviews returns how many tracks have previews.
func CountPreviews(tracks []Track) int {
	n := 0
	for _, t := range tracks {
		if t.HasPreview() {
			n++
		}
	}
	return n
}

// Playlist is a playlist created on the music service.
type Playlist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Mood   string  `json:"mood"`
	URL    string  `json:"url,omitempty"`
	Tracks []Track `json:"tracks"`
}

// AudioTargets tune a recommendation request. Values are in [0,1].
type AudioTargets struct {
	Energy       float64 `yaml:"energy" json:"energy"`
	Valence      float64 `yaml:"valence" json:"valence"`
	Danceability float64 `yaml:"danceability" json:"danceability"`
}
