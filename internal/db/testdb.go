package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// NewTestDB creates a fresh file-backed SQLite database in a temporary
// directory with the schema of the given store applied.
func NewTestDB(t *testing.T, store Store) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), string(store)+".sqlite3")
	db, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := EnsureSchema(context.Background(), db, store); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
