package db

import (
	"time"

	"github.com/google/uuid"
)

// Playlist records a playlist saved from a suggestion bundle.
type Playlist struct {
	ID        uuid.UUID
	SpotifyID string
	UserID    string
	Name      string
	Mood      string
	TrackIDs  []string
	CreatedAt time.Time
}
