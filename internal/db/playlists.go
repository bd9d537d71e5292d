package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository handles saved playlist records.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a playlist record, assigning an ID when unset. The owning
// user row is created if missing.
func (r *PlaylistRepository) Create(ctx context.Context, p *Playlist) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userQuery := `
		INSERT INTO users (id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, userQuery, p.UserID); err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO playlists (id, spotify_id, user_id, name, mood, track_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		p.ID,
		p.SpotifyID,
		p.UserID,
		p.Name,
		p.Mood,
		p.TrackIDs,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting playlist: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing playlist: %w", err)
	}
	return nil
}

// ListForUser returns a user's playlists, newest first.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Playlist, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, spotify_id, user_id, name, mood, track_ids, created_at
		FROM playlists
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.SpotifyID, &p.UserID, &p.Name, &p.Mood, &p.TrackIDs, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating playlists: %w", err)
	}
	return playlists, nil
}
