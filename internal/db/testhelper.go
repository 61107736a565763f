package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestDuckDB opens an in-memory DuckDB store with the single-connection
// discipline used in production and registers cleanup.
func OpenTestDuckDB(t *testing.T) *sql.DB {
	t.Helper()

	dbh, err := OpenDuckDB("", "", 0)
	if err != nil {
		t.Fatalf("open test duckdb: %v", err)
	}
	t.Cleanup(func() {
		_ = dbh.Close()
	})

	return dbh
}

// OpenTestHistorySQLite opens a migrated history sidecar in t.TempDir()
// and registers cleanup.
func OpenTestHistorySQLite(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.sqlite")

	dbh, err := OpenHistorySQLite(path)
	if err != nil {
		t.Fatalf("open test history sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = dbh.Close()
	})

	return dbh
}
