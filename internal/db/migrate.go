package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

// RunHistoryMigrations executes all pending goose migrations against the
// SQLite history sidecar.
func RunHistoryMigrations(db *sql.DB) error {
	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
