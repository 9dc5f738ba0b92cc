package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRewritePlaceholdersSkipsQuotedText(t *testing.T) {
	q := `SELECT ?, '?', "id?", 'it''s ?' FROM session_value WHERE session_id = ?`
	want := `SELECT $1, '?', "id?", 'it''s ?' FROM session_value WHERE session_id = $2`
	assert.Equal(t, want, rewritePlaceholders(q))
}

func TestRewriteQueryLeavesSQLiteUntouched(t *testing.T) {
	q := `DELETE FROM session_value WHERE session_id = ? AND name = ?`
	assert.Equal(t, q, rewriteQuery(DialectSQLite, q))
	assert.Equal(t, `DELETE FROM session_value WHERE session_id = $1 AND name = $2`, rewriteQuery(DialectPostgres, q))
}

func TestDialectString(t *testing.T) {
	assert.Equal(t, "sqlite", DialectSQLite.String())
	assert.Equal(t, "postgres", DialectPostgres.String())
	assert.Equal(t, "unknown", Dialect(42).String())
}

func TestNilDBIsSafe(t *testing.T) {
	var db *DB
	assert.Equal(t, DialectSQLite, db.Dialect())
	assert.Nil(t, db.RawDB())
	assert.NoError(t, db.Close())
}

func TestWrapExecutesAgainstSQLite(t *testing.T) {
	raw, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = raw.Close()
	})
	raw.SetMaxOpenConns(1)

	db := Wrap(raw, DialectSQLite)
	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES(?, ?)`, "a", "1")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, "a").Scan(&v))
	assert.Equal(t, "1", v)

	rows, err := db.QueryContext(ctx, `SELECT k FROM kv`)
	require.NoError(t, err)
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 1, count)
}
