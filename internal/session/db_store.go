package session

import "context"

// ValueRepository persists session values keyed by session id.
type ValueRepository interface {
	GetValue(ctx context.Context, sessionID, key string) (string, bool, error)
	SetValue(ctx context.Context, sessionID, key, value string) error
	DeleteValue(ctx context.Context, sessionID, key string) error
	DeleteValues(ctx context.Context, sessionID string) error
}

// DBStore is a Store scoped to one session id inside a ValueRepository.
type DBStore struct {
	repo      ValueRepository
	sessionID string
}

// NewDBStore creates a DBStore for sessionID.
func NewDBStore(repo ValueRepository, sessionID string) *DBStore {
	return &DBStore{repo: repo, sessionID: sessionID}
}

// Get implements Store.
func (s *DBStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.GetValue(ctx, s.sessionID, key)
}

// Set implements Store.
func (s *DBStore) Set(ctx context.Context, key, value string) error {
	return s.repo.SetValue(ctx, s.sessionID, key, value)
}

// Delete implements Store.
func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteValue(ctx, s.sessionID, key)
}

// Clear implements Store.
func (s *DBStore) Clear(ctx context.Context) error {
	return s.repo.DeleteValues(ctx, s.sessionID)
}

var _ Store = (*DBStore)(nil)
