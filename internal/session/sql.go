package session

import (
	"context"
	"time"

	"confirm-dialog/internal/store/sqlite"
)

// SQLBackend stores sessions in the session_value table of a SQLite or
// PostgreSQL database.
type SQLBackend struct {
	repo *sqlite.Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewSQLBackend(repo *sqlite.Repository, ttl time.Duration) *SQLBackend {
	return &SQLBackend{repo: repo, ttl: normalizeTTL(ttl), now: time.Now}
}

func (b *SQLBackend) Get(ctx context.Context, sessionID, name string) ([]byte, bool, error) {
	return b.repo.GetValue(ctx, sessionID, name, b.now())
}

func (b *SQLBackend) Set(ctx context.Context, sessionID, name string, value []byte) error {
	return b.repo.SetValue(ctx, sessionID, name, value, b.now().Add(b.ttl))
}

func (b *SQLBackend) Delete(ctx context.Context, sessionID, name string) error {
	return b.repo.DeleteValue(ctx, sessionID, name)
}

func (b *SQLBackend) Destroy(ctx context.Context, sessionID string) error {
	return b.repo.DeleteSession(ctx, sessionID)
}

// Purge drops rows of sessions that have already ended.
func (b *SQLBackend) Purge(ctx context.Context) (int64, error) {
	return b.repo.PurgeExpired(ctx, b.now())
}

func (b *SQLBackend) Close() error {
	return b.repo.Close()
}
