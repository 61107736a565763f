// Package db provides database connectivity helpers and migration support.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"sheetbase/internal/domain"
)

// OpenDuckDB opens the DuckDB row store with a single process-wide
// connection (MaxOpenConns=1). Every component shares this handle; write
// operations rely on the exclusive connection plus explicit transaction
// boundaries for all-or-nothing multi-statement mutations.
//
// memoryLimit (e.g. "4GB") and threads tune the DuckDB session; zero
// values leave the engine defaults in place.
func OpenDuckDB(path string, memoryLimit string, threads int) (*sql.DB, error) {
	dbh, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, domain.ErrConnection(err, "open duckdb %q: %v", path, err)
	}

	dbh.SetMaxOpenConns(1)
	dbh.SetMaxIdleConns(1)
	dbh.SetConnMaxLifetime(0) // keep the single connection for the process lifetime

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbh.PingContext(ctx); err != nil {
		_ = dbh.Close()
		return nil, domain.ErrConnection(err, "ping duckdb %q: %v", path, err)
	}

	// Session tuning. Failures here are non-fatal: the settings are
	// performance hints, not correctness requirements.
	if memoryLimit != "" {
		_, _ = dbh.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%s'", memoryLimit))
	}
	if threads > 0 {
		_, _ = dbh.ExecContext(ctx, fmt.Sprintf("SET threads = %d", threads))
	}

	return dbh, nil
}
