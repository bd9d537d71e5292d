package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles session and session value operations.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Touch creates the session row or pushes its expiry to expiresAt. lapsed
// reports that the row existed but had already expired, so any values it
// still holds are stale.
func (r *SessionRepository) Touch(ctx context.Context, id string, expiresAt time.Time) (lapsed bool, err error) {
	query := `
		WITH prev AS (SELECT expires_at FROM sessions WHERE id = $1)
		INSERT INTO sessions (id, created_at, expires_at)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		RETURNING (SELECT expires_at <= NOW() FROM prev)
	`
	var expired *bool
	if err := r.pool.QueryRow(ctx, query, id, expiresAt).Scan(&expired); err != nil {
		return false, fmt.Errorf("touching session: %w", err)
	}
	return expired != nil && *expired, nil
}

// Delete removes a session and its values.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes all expired sessions.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetValue returns one session value.
func (r *SessionRepository) GetValue(ctx context.Context, sessionID, key string) (string, bool, error) {
	query := `SELECT value FROM session_values WHERE session_id = $1 AND key = $2`
	var value string
	err := r.pool.QueryRow(ctx, query, sessionID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying session value: %w", err)
	}
	return value, true, nil
}

// SetValue creates or replaces one session value.
func (r *SessionRepository) SetValue(ctx context.Context, sessionID, key, value string) error {
	query := `
		INSERT INTO session_values (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, sessionID, key, value); err != nil {
		return fmt.Errorf("upserting session value: %w", err)
	}
	return nil
}

// DeleteValue removes one session value.
func (r *SessionRepository) DeleteValue(ctx context.Context, sessionID, key string) error {
	query := `DELETE FROM session_values WHERE session_id = $1 AND key = $2`
	if _, err := r.pool.Exec(ctx, query, sessionID, key); err != nil {
		return fmt.Errorf("deleting session value: %w", err)
	}
	return nil
}

// DeleteValues removes every value of a session, keeping the session row.
func (r *SessionRepository) DeleteValues(ctx context.Context, sessionID string) error {
	query := `DELETE FROM session_values WHERE session_id = $1`
	if _, err := r.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("deleting session values: %w", err)
	}
	return nil
}
