package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/justestif/go-moodtunes/internal/db"
)

// Provider opens and removes the Store behind a browser session id.
type Provider interface {
	Open(ctx context.Context, id string) (Store, error)
	Remove(ctx context.Context, id string) error
}

// MemoryProvider hands out a fresh MemoryStore per session.
type MemoryProvider struct{}

// Open implements Provider.
func (MemoryProvider) Open(context.Context, string) (Store, error) {
	return NewMemoryStore(), nil
}

// Remove implements Provider.
func (MemoryProvider) Remove(context.Context, string) error {
	return nil
}

// FileProvider keeps one JSON file per session under a directory, so
// sessions survive a restart.
type FileProvider struct {
	Dir string
}

// Open implements Provider.
func (p FileProvider) Open(_ context.Context, id string) (Store, error) {
	return NewFileStore(filepath.Join(p.Dir, id+".json")), nil
}

// Remove implements Provider.
func (p FileProvider) Remove(ctx context.Context, id string) error {
	return NewFileStore(filepath.Join(p.Dir, id+".json")).Clear(ctx)
}

// SessionRows is the session table plus its values.
type SessionRows interface {
	ValueRepository
	Touch(ctx context.Context, id string, expiresAt time.Time) (lapsed bool, err error)
	Delete(ctx context.Context, id string) error
}

// DBProvider stores session values in the database. Every Open slides the
// row's expiry forward by TTL; a row that lapsed before the purge reached
// it starts over empty.
type DBProvider struct {
	Rows SessionRows
	TTL  time.Duration
	Now  func() time.Time
}

// Open implements Provider.
func (p DBProvider) Open(ctx context.Context, id string) (Store, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	lapsed, err := p.Rows.Touch(ctx, id, now().Add(p.TTL))
	if err != nil {
		return nil, err
	}
	if lapsed {
		if err := p.Rows.DeleteValues(ctx, id); err != nil {
			return nil, fmt.Errorf("clearing lapsed session: %w", err)
		}
	}
	return NewDBStore(p.Rows, id), nil
}

// Remove implements Provider.
func (p DBProvider) Remove(ctx context.Context, id string) error {
	return p.Rows.Delete(ctx, id)
}

var (
	_ Provider    = MemoryProvider{}
	_ Provider    = FileProvider{}
	_ Provider    = DBProvider{}
	_ SessionRows = (*db.SessionRepository)(nil)
)
