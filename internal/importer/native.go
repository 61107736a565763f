package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

// NativeBulk ingests a file through the engine's own readers: the file is
// staged into a temporary table with a single scan, the shared table is
// evolved to cover its columns, and the rows are moved over with one
// INSERT ... SELECT. Fastest path when the engine can parse the file.
type NativeBulk struct {
	db      *sql.DB
	evolver *schema.Evolver
	logger  *slog.Logger
}

func NewNativeBulk(db *sql.DB, evolver *schema.Evolver, logger *slog.Logger) *NativeBulk {
	return &NativeBulk{db: db, evolver: evolver, logger: logger}
}

func (s *NativeBulk) Name() string { return domain.MethodNativeBulk }

func (s *NativeBulk) Ingest(ctx context.Context, req Request) (int64, error) {
	relation, err := s.readRelation(ctx, req.Path)
	if err != nil {
		return 0, err
	}
	return stageAndInsert(ctx, s.db, s.evolver, relation, req.FileID)
}

// readRelation returns the table-function expression that reads req.Path,
// loading the excel extension first for workbooks.
func (s *NativeBulk) readRelation(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fmt.Sprintf("read_csv(%s, header = true, all_varchar = true)", quoteLiteral(path)), nil
	case ".xlsx":
		if _, err := s.db.ExecContext(ctx, "INSTALL excel; LOAD excel"); err != nil {
			return "", fmt.Errorf("load excel extension: %w", err)
		}
		return fmt.Sprintf("read_xlsx(%s, header = true, all_varchar = true)", quoteLiteral(path)), nil
	default:
		return "", fmt.Errorf("no native reader for %q", filepath.Ext(path))
	}
}

// stageAndInsert materializes relation into a temporary table, evolves the
// shared table to cover its columns, and copies the rows across tagged
// with fileID. The whole move runs in one transaction.
func stageAndInsert(ctx context.Context, db *sql.DB, evolver *schema.Evolver, relation string, fileID int64) (int64, error) {
	staging := "staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	cols, err := relationColumns(ctx, db, relation)
	if err != nil {
		return 0, fmt.Errorf("probe columns: %w", err)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("file has no columns")
	}
	mapping := mapColumns(cols)

	if err := evolver.EnsureTable(ctx, mapping.Targets); err != nil {
		return 0, err
	}
	if err := evolver.EnsureColumns(ctx, mapping.Targets); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT * FROM %s", staging, relation)); err != nil {
		return 0, fmt.Errorf("stage file: %w", err)
	}
	defer tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging)

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT ?, %s FROM %s",
		schema.ProductsTable, mapping.insertColumnList(), mapping.sourceSelectList(), staging,
	), fileID)
	if err != nil {
		return 0, fmt.Errorf("copy staged rows: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+staging); err != nil {
		return 0, fmt.Errorf("drop staging table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
