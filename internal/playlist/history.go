package playlist

import (
	"context"

	"github.com/justestif/go-moodtunes/internal/db"
)

// PlaylistCreator stores playlist rows.
type PlaylistCreator interface {
	Create(ctx context.Context, p *db.Playlist) error
}

// DBRecorder records saved playlists in the database.
type DBRecorder struct {
	repo PlaylistCreator
}

// NewDBRecorder creates a DBRecorder.
func NewDBRecorder(repo PlaylistCreator) *DBRecorder {
	return &DBRecorder{repo: repo}
}

// RecordPlaylist inserts a history row for rec.
func (r *DBRecorder) RecordPlaylist(ctx context.Context, rec Record) error {
	return r.repo.Create(ctx, &db.Playlist{
		SpotifyID: rec.SpotifyID,
		UserID:    rec.UserID,
		Name:      rec.Name,
		Mood:      string(rec.Mood),
		TrackIDs:  rec.TrackIDs,
	})
}

var (
	_ Recorder        = (*DBRecorder)(nil)
	_ PlaylistCreator = (*db.PlaylistRepository)(nil)
)
