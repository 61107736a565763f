// Package schema owns DDL against the shared wide row table. Columns are
// append-only: the table grows to admit every column any file has ever
// carried and never shrinks, even when files are deleted.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"sheetbase/internal/domain"
)

// ProductsTable is the shared row table spanning all imported files.
const ProductsTable = "products"

// SourceFileColumn is the ownership column tagging each row with its file.
const SourceFileColumn = "source_file_id"

// Evolver ensures the shared table exists and grows to admit new columns
// without breaking existing data. Both operations are cheap no-ops when
// the schema already satisfies the request; they run once per chunk
// during large imports.
type Evolver struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates an Evolver on the shared store handle.
func New(db *sql.DB, logger *slog.Logger) *Evolver {
	return &Evolver{db: db, logger: logger}
}

// TableExists reports whether the shared table has been created.
func (e *Evolver) TableExists(ctx context.Context) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
		ProductsTable).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", ProductsTable, err)
	}
	return n > 0, nil
}

// EnsureTable creates the shared table when missing: the ownership column
// plus one VARCHAR column per normalized input header. Creation failure is
// fatal to the import.
func (e *Evolver) EnsureTable(ctx context.Context, columns []string) error {
	exists, err := e.TableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	defs := []string{SourceFileColumn + " INTEGER"}
	for _, col := range dedupeNormalized(columns) {
		defs = append(defs, QuoteIdent(col)+" VARCHAR DEFAULT ''")
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", ProductsTable, strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return domain.ErrSchemaEvolution(err, "create table %s: %v", ProductsTable, err)
	}

	e.logger.Info("created shared row table", "table", ProductsTable, "columns", len(columns))
	return nil
}

// EnsureColumns adds any normalized column not already present as a
// VARCHAR defaulting to the empty string, so rows from other files read
// back as empty rather than null. Column-add failures are logged and
// skipped: the import continues with that column dropped for the batch.
func (e *Evolver) EnsureColumns(ctx context.Context, columns []string) error {
	existing, err := e.columnSet(ctx)
	if err != nil {
		return err
	}

	for _, col := range dedupeNormalized(columns) {
		if _, ok := existing[strings.ToLower(col)]; ok {
			continue
		}
		alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR DEFAULT ''",
			ProductsTable, QuoteIdent(col))
		if _, err := e.db.ExecContext(ctx, alterSQL); err != nil {
			e.logger.Warn("could not add column", "column", col, "error", err)
			continue
		}
		existing[strings.ToLower(col)] = struct{}{}
		e.logger.Debug("added column", "table", ProductsTable, "column", col)
	}
	return nil
}

// TableColumns returns the shared table's columns in physical order,
// including the ownership column.
func (e *Evolver) TableColumns(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_name = ? ORDER BY ordinal_position`,
		ProductsTable)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", ProductsTable, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// columnSet returns the lowercased existing column names.
func (e *Evolver) columnSet(ctx context.Context) (map[string]struct{}, error) {
	cols, err := e.TableColumns(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set, nil
}

// dedupeNormalized normalizes headers and drops duplicates and any header
// that collides with the ownership column, preserving first-seen order.
func dedupeNormalized(columns []string) []string {
	seen := map[string]struct{}{strings.ToLower(SourceFileColumn): {}}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		norm := domain.NormalizeColumn(c)
		key := strings.ToLower(norm)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// QuoteIdent double-quotes an identifier for inclusion in DDL/DML.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
