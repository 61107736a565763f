package db

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sheetbase/internal/domain"
)

// SQLite DSN parameters for the history sidecar.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// OpenHistorySQLite opens the write-only search-history sidecar and runs
// its embedded migrations. The sidecar is a single-writer store
// (MaxOpenConns=1) kept separate from the DuckDB row store so history
// writes never contend with imports.
func OpenHistorySQLite(path string) (*sql.DB, error) {
	dbh, err := sql.Open("sqlite3", buildHistoryDSN(path))
	if err != nil {
		return nil, domain.ErrConnection(err, "open sqlite %q: %v", path, err)
	}

	dbh.SetMaxOpenConns(1)
	dbh.SetMaxIdleConns(1)
	dbh.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbh.PingContext(ctx); err != nil {
		_ = dbh.Close()
		return nil, domain.ErrConnection(err, "ping sqlite %q: %v", path, err)
	}

	if err := RunHistoryMigrations(dbh); err != nil {
		_ = dbh.Close()
		return nil, err
	}

	return dbh, nil
}

// buildHistoryDSN constructs a SQLite DSN with hardened parameters.
func buildHistoryDSN(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_txlock", "immediate")

	return path + "?" + params.Encode()
}
