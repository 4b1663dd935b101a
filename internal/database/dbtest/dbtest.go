// Package dbtest provides migrated SQLite databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/moderation-escalation/internal/database"
)

// Open returns a freshly migrated SQLite database stored in a temp dir.
// The database is closed when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	return db
}

// CreateUser inserts a user with the given counters and returns its ID.
func CreateUser(t testing.TB, db *sql.DB, strikes, suspensions int) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (email, strike_count, suspension_count) VALUES (?, ?, ?)`,
		"user@example.com", strikes, suspensions)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// CreateReport inserts a pending report for contentID and returns its ID.
func CreateReport(t testing.TB, db *sql.DB, contentID string) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO reports (reporter_id, content_id, reason) VALUES (?, ?, ?)`,
		99, contentID, "spam")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}
