// Package catalog owns the file registry and the per-file column registry.
// All ImportedFile and column lifecycle changes go through this store; no
// other component mutates its tables directly.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

// Store persists file registration, per-file column and index metadata,
// and soft-delete status in the DuckDB row store.
type Store struct {
	db     *sql.DB
	dbPath string // on-disk store location, "" for in-memory
	logger *slog.Logger
}

// NewStore creates a Store on the shared connection. dbPath is used only
// for on-disk size reporting.
func NewStore(db *sql.DB, dbPath string, logger *slog.Logger) *Store {
	return &Store{db: db, dbPath: dbPath, logger: logger}
}

// EnsureBasicSchema creates the registry tables when missing. It is the
// minimal fallback when the full migration cannot run, and a no-op
// otherwise.
func (s *Store) EnsureBasicSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS imported_files (
			file_id INTEGER PRIMARY KEY,
			original_filename VARCHAR NOT NULL,
			import_date TIMESTAMP NOT NULL,
			row_count INTEGER DEFAULT 0,
			indexed_columns VARCHAR,
			file_size_mb DOUBLE,
			status VARCHAR DEFAULT 'active',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS file_columns (
			file_id INTEGER,
			column_name VARCHAR,
			is_indexed BOOLEAN DEFAULT FALSE,
			data_type VARCHAR,
			PRIMARY KEY (file_id, column_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure registry schema: %w", err)
		}
	}
	return nil
}

// RegisterFile allocates the next file_id and inserts an active registry
// entry with zero rows. Called before any rows are read for the file;
// file ids are monotonically increasing and never reused.
func (s *Store) RegisterFile(ctx context.Context, filename string, sizeMB float64, indexedColumns []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin register file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(file_id), 0) + 1 FROM imported_files`).Scan(&fileID); err != nil {
		return 0, fmt.Errorf("allocate file_id: %w", err)
	}

	indexed := strings.Join(domain.NormalizeColumns(indexedColumns), ",")
	_, err = tx.ExecContext(ctx, `
		INSERT INTO imported_files
			(file_id, original_filename, import_date, row_count, indexed_columns, file_size_mb, status)
		VALUES (?, ?, CURRENT_TIMESTAMP, 0, ?, ?, 'active')`,
		fileID, filename, indexed, sizeMB)
	if err != nil {
		return 0, fmt.Errorf("register file %q: %w", filename, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit register file: %w", err)
	}

	s.logger.Info("registered file", "file_id", fileID, "filename", filename, "size_mb", sizeMB)
	return fileID, nil
}

// UpdateFileStats sets the final row count after ingestion. Idempotent.
func (s *Store) UpdateFileStats(ctx context.Context, fileID, rowCount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE imported_files
		SET row_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE file_id = ?`, rowCount, fileID)
	if err != nil {
		return fmt.Errorf("update stats for file %d: %w", fileID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("file %d not found", fileID)
	}
	return nil
}

// MarkFileStatus flips a registry entry's status, e.g. to record a failed
// import attempt.
func (s *Store) MarkFileStatus(ctx context.Context, fileID int64, status domain.FileStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE imported_files
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE file_id = ?`, string(status), fileID)
	if err != nil {
		return fmt.Errorf("mark file %d %s: %w", fileID, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("file %d not found", fileID)
	}
	return nil
}

// RegisterColumns upserts one column-registry row per column, marking
// is_indexed from membership in indexedColumns. Safe to call repeatedly;
// last write wins for is_indexed.
func (s *Store) RegisterColumns(ctx context.Context, fileID int64, allColumns, indexedColumns []string) error {
	indexed := make(map[string]struct{}, len(indexedColumns))
	for _, c := range indexedColumns {
		indexed[strings.ToLower(domain.NormalizeColumn(c))] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register columns: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, col := range allColumns {
		norm := domain.NormalizeColumn(col)
		_, isIdx := indexed[strings.ToLower(norm)]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_columns (file_id, column_name, is_indexed, data_type)
			VALUES (?, ?, ?, 'VARCHAR')
			ON CONFLICT (file_id, column_name)
			DO UPDATE SET is_indexed = EXCLUDED.is_indexed`,
			fileID, norm, isIdx)
		if err != nil {
			return fmt.Errorf("register column %q for file %d: %w", norm, fileID, err)
		}
	}

	return tx.Commit()
}

// ListFiles returns every registry entry, newest import first, including
// soft-deleted and errored ones.
func (s *Store) ListFiles(ctx context.Context) ([]domain.ImportedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, original_filename, import_date, row_count, indexed_columns, file_size_mb, status
		FROM imported_files
		ORDER BY import_date DESC, file_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []domain.ImportedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetFile returns one registry entry or NotFoundError.
func (s *Store) GetFile(ctx context.Context, fileID int64) (domain.ImportedFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, original_filename, import_date, row_count, indexed_columns, file_size_mb, status
		FROM imported_files
		WHERE file_id = ?`, fileID)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImportedFile{}, domain.ErrNotFound("file %d not found", fileID)
	}
	if err != nil {
		return domain.ImportedFile{}, fmt.Errorf("get file %d: %w", fileID, err)
	}
	return f, nil
}

// ActiveFiles returns active registry entries, optionally restricted to
// the given scope, ordered by file_id.
func (s *Store) ActiveFiles(ctx context.Context, scope []int64) ([]domain.ImportedFile, error) {
	query := `
		SELECT file_id, original_filename, import_date, row_count, indexed_columns, file_size_mb, status
		FROM imported_files
		WHERE status = 'active'`
	var args []interface{}
	if len(scope) > 0 {
		query += ` AND file_id IN (` + placeholders(len(scope)) + `)`
		for _, id := range scope {
			args = append(args, id)
		}
	}
	query += ` ORDER BY file_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active files: %w", err)
	}
	defer rows.Close()

	var files []domain.ImportedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile soft-deletes a file: its product rows and column-registry
// rows are removed and the registry entry flips to deleted, all in one
// transaction so partial deletion is never observable.
func (s *Store) DeleteFile(ctx context.Context, fileID int64) error {
	f, err := s.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status == domain.FileDeleted {
		return domain.ErrConflict("file %d is already deleted", fileID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete file %d: %w", fileID, err)
	}
	defer func() { _ = tx.Rollback() }()

	// The shared table may not exist if every import so far failed before
	// creating it.
	var hasProducts int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
		schema.ProductsTable).Scan(&hasProducts); err != nil {
		return fmt.Errorf("delete file %d: %w", fileID, err)
	}
	if hasProducts > 0 {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, schema.ProductsTable, schema.SourceFileColumn),
			fileID); err != nil {
			return fmt.Errorf("delete rows of file %d: %w", fileID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_columns WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete columns of file %d: %w", fileID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE imported_files
		SET status = 'deleted', updated_at = CURRENT_TIMESTAMP
		WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("mark file %d deleted: %w", fileID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete file %d: %w", fileID, err)
	}

	s.logger.Info("deleted file", "file_id", fileID, "filename", f.Filename, "rows_removed", f.RowCount)
	return nil
}

// UpdateIndexedColumns replaces a file's index selection without
// re-importing data: column flags, the denormalized list, and the
// materialized indexes are all updated.
func (s *Store) UpdateIndexedColumns(ctx context.Context, fileID int64, indexedColumns []string) error {
	if _, err := s.GetFile(ctx, fileID); err != nil {
		return err
	}

	norm := domain.NormalizeColumns(indexedColumns)
	indexed := make(map[string]struct{}, len(norm))
	for _, c := range norm {
		indexed[strings.ToLower(c)] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update indexes for file %d: %w", fileID, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT column_name FROM file_columns WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("list columns of file %d: %w", fileID, err)
	}
	var all []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return err
		}
		all = append(all, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range all {
		_, isIdx := indexed[strings.ToLower(col)]
		if _, err := tx.ExecContext(ctx, `
			UPDATE file_columns SET is_indexed = ?
			WHERE file_id = ? AND column_name = ?`, isIdx, fileID, col); err != nil {
			return fmt.Errorf("update index flag %q for file %d: %w", col, fileID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE imported_files
		SET indexed_columns = ?, updated_at = CURRENT_TIMESTAMP
		WHERE file_id = ?`, strings.Join(norm, ","), fileID); err != nil {
		return fmt.Errorf("update indexed list for file %d: %w", fileID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update indexes for file %d: %w", fileID, err)
	}

	// Drop materialized indexes for columns that fell out of the selection
	// so reindexing does not accumulate stale ones.
	for _, col := range all {
		if _, isIdx := indexed[strings.ToLower(col)]; isIdx {
			continue
		}
		name := fmt.Sprintf("idx_%s_%d", strings.ToLower(col), fileID)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, name)); err != nil {
			s.logger.Warn("drop stale index", "index", name, "error", err)
		}
	}

	return s.CreateIndexes(ctx, fileID, norm)
}

// CreateIndexes materializes a composite index per requested column.
// Index failures are logged and skipped: search falls back to scans.
func (s *Store) CreateIndexes(ctx context.Context, fileID int64, columns []string) error {
	for _, col := range columns {
		norm := domain.NormalizeColumn(col)
		name := fmt.Sprintf("idx_%s_%d", strings.ToLower(norm), fileID)
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)`,
			name, schema.ProductsTable, schema.SourceFileColumn, schema.QuoteIdent(norm))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Warn("could not create index", "column", norm, "file_id", fileID, "error", err)
			continue
		}
		s.logger.Debug("created index", "index", name)
	}
	return nil
}

// IndexedColumns returns the distinct columns marked searchable across
// the files in scope (all files when scope is empty). Soft-deleted files
// contribute nothing because their registry rows are removed on delete.
func (s *Store) IndexedColumns(ctx context.Context, scope []int64) ([]string, error) {
	query := `SELECT DISTINCT column_name FROM file_columns WHERE is_indexed = true`
	var args []interface{}
	if len(scope) > 0 {
		query += ` AND file_id IN (` + placeholders(len(scope)) + `)`
		for _, id := range scope {
			args = append(args, id)
		}
	}
	query += ` ORDER BY column_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexed columns: %w", err)
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

// ColumnsForFile returns the registered columns of one file with their
// index flags, ordered by name.
func (s *Store) ColumnsForFile(ctx context.Context, fileID int64) ([]domain.ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, is_indexed FROM file_columns
		WHERE file_id = ? ORDER BY column_name`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list columns of file %d: %w", fileID, err)
	}
	defer rows.Close()

	var cols []domain.ColumnInfo
	for rows.Next() {
		var c domain.ColumnInfo
		if err := rows.Scan(&c.Name, &c.Indexed); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// AllColumns returns the union of column names registered across active
// files.
func (s *Store) AllColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT fc.column_name
		FROM file_columns fc
		JOIN imported_files f ON f.file_id = fc.file_id
		WHERE f.status = 'active'
		ORDER BY fc.column_name`)
	if err != nil {
		return nil, fmt.Errorf("list all columns: %w", err)
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

// Stats aggregates totals across active files plus the store's on-disk
// size.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats

	var rowsTotal, sizeTotal sql.NullFloat64
	var fileCount sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(row_count), SUM(file_size_mb)
		FROM imported_files
		WHERE status = 'active'`).Scan(&fileCount, &rowsTotal, &sizeTotal)
	if err != nil {
		return stats, fmt.Errorf("aggregate stats: %w", err)
	}

	stats.TotalFiles = fileCount.Int64
	stats.TotalRecords = int64(rowsTotal.Float64)
	stats.TotalFileSizeMB = sizeTotal.Float64

	if s.dbPath != "" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
		}
	}

	files, err := s.ListFiles(ctx)
	if err != nil {
		return stats, err
	}
	stats.Files = files
	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanFile.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(sc scanner) (domain.ImportedFile, error) {
	var f domain.ImportedFile
	var importDate time.Time
	var indexed sql.NullString
	var sizeMB sql.NullFloat64
	var status string

	if err := sc.Scan(&f.FileID, &f.Filename, &importDate, &f.RowCount, &indexed, &sizeMB, &status); err != nil {
		return f, err
	}

	f.ImportDate = importDate
	f.FileSizeMB = sizeMB.Float64
	f.Status = domain.FileStatus(status)
	if indexed.String != "" {
		f.IndexedColumns = strings.Split(indexed.String, ",")
	}
	return f, nil
}

// placeholders returns "?, ?, ..." of length n.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
