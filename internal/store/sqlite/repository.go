package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"confirm-dialog/internal/store"
	pgstore "confirm-dialog/internal/store/postgres"
)

//go:embed sql/schema.sql
var embeddedSchema string

const currentSchemaVersion = 2

var errNotInitialized = errors.New("repository not initialized")

// Repository persists session values. Every row carries the expiry of the
// session it belongs to; a write refreshes the expiry of the whole session.
type Repository struct {
	db *store.DB
}

func (r *Repository) DB() *store.DB {
	if r == nil {
		return nil
	}
	return r.db
}

func Open(path string) (*Repository, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	// Use _pragma DSN parameters so every connection from the pool gets
	// the same settings (busy_timeout and synchronous are per-connection).
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return openWith(store.Wrap(raw, store.DialectSQLite), embeddedSchema)
}

func OpenPostgres(dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty postgres dsn")
	}

	raw, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return openWith(store.Wrap(raw, store.DialectPostgres), pgstore.EmbeddedSchema)
}

func openWith(db *store.DB, schemaSQL string) (*Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", db.Dialect())
	}
	if err := bootstrapSchema(ctx, db, schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GetValue returns the stored value, or found=false when the row is missing
// or its session has expired.
func (r *Repository) GetValue(ctx context.Context, sessionID, name string, now time.Time) ([]byte, bool, error) {
	if r == nil || r.db == nil {
		return nil, false, errNotInitialized
	}

	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM session_value
		WHERE session_id = ? AND name = ? AND expires_at > ?
		LIMIT 1
	`, sessionID, name, now.UnixMilli()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// SetValue upserts one value and extends the whole session to expiresAt.
func (r *Repository) SetValue(ctx context.Context, sessionID, name string, value []byte, expiresAt time.Time) error {
	if r == nil || r.db == nil {
		return errNotInitialized
	}

	exp := expiresAt.UnixMilli()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO session_value(session_id, name, value, expires_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at
	`, sessionID, name, value, exp); err != nil {
		return errors.Wrap(err, "upsert session value")
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE session_value SET expires_at = ? WHERE session_id = ?`, exp, sessionID); err != nil {
		return errors.Wrap(err, "touch session")
	}
	return nil
}

func (r *Repository) DeleteValue(ctx context.Context, sessionID, name string) error {
	if r == nil || r.db == nil {
		return errNotInitialized
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_value WHERE session_id = ? AND name = ?`, sessionID, name)
	return err
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if r == nil || r.db == nil {
		return errNotInitialized
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_value WHERE session_id = ?`, sessionID)
	return err
}

// PurgeExpired removes rows of sessions that ended before now and reports how
// many rows were dropped.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errNotInitialized
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_value WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func ensureParentDir(dbPath string) error {
	if dbPath == "" {
		return errors.New("empty db path")
	}
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func bootstrapSchema(ctx context.Context, db *store.DB, schemaSQL string) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema.sql")
	}
	return nil
}

// migrateSchema brings older databases up to currentSchemaVersion.
func migrateSchema(ctx context.Context, db *store.DB) error {
	if db == nil {
		return errors.New("nil db")
	}

	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	// v1 databases predate the expiry index.
	if version < 2 {
		if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_session_value_expires ON session_value (expires_at)`); err != nil {
			return errors.Wrap(err, "create expiry index")
		}
	}

	return writeSchemaVersion(ctx, db, currentSchemaVersion)
}

func readSchemaVersion(ctx context.Context, db *store.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read schema_version")
	}
	return version, nil
}

func writeSchemaVersion(ctx context.Context, db *store.DB, version int) error {
	res, err := db.ExecContext(ctx, `UPDATE schema_version SET version = ?`, version)
	if err != nil {
		return errors.Wrap(err, "update schema_version")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES(?)`, version); err != nil {
		return errors.Wrap(err, "insert schema_version")
	}
	return nil
}
