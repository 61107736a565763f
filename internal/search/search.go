// Package search runs substring queries across every imported file at
// once, resolving which columns to match from the column registry.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sheetbase/internal/catalog"
	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

// Options narrows a search.
type Options struct {
	// FileIDs restricts matching to these files; empty means all active.
	FileIDs []int64
	// Columns overrides the searched columns; empty resolves from the
	// registry with a configured default as fallback.
	Columns []string
	Limit   int
	Offset  int
}

// Result is one page of matches plus the unpaged total.
type Result struct {
	Rows       []domain.SearchRow `json:"results"`
	TotalCount int64              `json:"total_count"`
	Columns    []string           `json:"searched_columns"`
}

// Service executes searches against the shared table.
type Service struct {
	db             *sql.DB
	catalog        *catalog.Store
	evolver        *schema.Evolver
	history        domain.SearchHistoryRecorder
	logger         *slog.Logger
	defaultColumns []string
	defaultLimit   int
	maxLimit       int
}

func New(db *sql.DB, cat *catalog.Store, evolver *schema.Evolver, history domain.SearchHistoryRecorder, logger *slog.Logger, defaultColumns []string, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Service{
		db:             db,
		catalog:        cat,
		evolver:        evolver,
		history:        history,
		logger:         logger,
		defaultColumns: defaultColumns,
		defaultLimit:   defaultLimit,
		maxLimit:       maxLimit,
	}
}

// Search finds rows whose searched columns contain term, case-insensitive.
// An empty term matches every row in scope. A store with no imported data
// returns an empty result, not an error.
func (s *Service) Search(ctx context.Context, term string, opts Options) (Result, error) {
	start := time.Now()

	term = strings.TrimSpace(term)
	cols, err := s.resolveColumns(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	if len(cols) == 0 {
		// A non-empty term with nothing to match against can't hit rows.
		// An empty term still returns everything as long as the table is
		// there to scan.
		if term != "" {
			return Result{Rows: []domain.SearchRow{}}, nil
		}
		exists, err := s.evolver.TableExists(ctx)
		if err != nil {
			return Result{}, err
		}
		if !exists {
			return Result{Rows: []domain.SearchRow{}}, nil
		}
	}

	res, err := s.run(ctx, term, cols, opts)
	if err != nil {
		return Result{}, err
	}

	s.record(term, res.TotalCount, start)
	return res, nil
}

// SearchGrouped runs one search per active file in scope and groups the
// matches by filename. An empty term matches every row in scope. Files
// with zero matches are omitted.
func (s *Service) SearchGrouped(ctx context.Context, term string, opts Options) (domain.GroupedResult, error) {
	start := time.Now()

	term = strings.TrimSpace(term)
	files, err := s.catalog.ActiveFiles(ctx, opts.FileIDs)
	if err != nil {
		return domain.GroupedResult{}, err
	}

	grouped := domain.GroupedResult{Files: map[string]domain.FileGroup{}}
	for _, file := range files {
		fileOpts := opts
		fileOpts.FileIDs = []int64{file.FileID}
		cols, err := s.resolveColumns(ctx, fileOpts)
		if err != nil {
			return domain.GroupedResult{}, err
		}
		if term != "" && len(cols) == 0 {
			continue
		}
		res, err := s.run(ctx, term, cols, fileOpts)
		if err != nil {
			return domain.GroupedResult{}, err
		}
		if res.TotalCount == 0 {
			continue
		}
		grouped.Files[file.Filename] = domain.FileGroup{
			FileID:    file.FileID,
			Rows:      res.Rows,
			Count:     res.TotalCount,
			TotalRows: file.RowCount,
		}
		grouped.TotalCount += res.TotalCount
	}
	grouped.FileCount = len(grouped.Files)

	s.record(term, grouped.TotalCount, start)
	return grouped, nil
}

// resolveColumns picks the columns to match: an explicit override wins,
// then the registry's indexed columns for the scope, then the configured
// defaults restricted to columns the table actually has. Every candidate
// is validated against the live schema so user input never reaches SQL
// unchecked.
func (s *Service) resolveColumns(ctx context.Context, opts Options) ([]string, error) {
	exists, err := s.evolver.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	tableCols, err := s.evolver.TableColumns(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]string, len(tableCols))
	for _, c := range tableCols {
		if strings.EqualFold(c, schema.SourceFileColumn) {
			continue
		}
		live[strings.ToLower(c)] = c
	}

	candidates := opts.Columns
	if len(candidates) == 0 {
		candidates, err = s.catalog.IndexedColumns(ctx, opts.FileIDs)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		candidates = s.defaultColumns
	}

	var cols []string
	seen := map[string]struct{}{}
	for _, c := range candidates {
		norm := strings.ToLower(domain.NormalizeColumn(c))
		actual, ok := live[norm]
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		cols = append(cols, actual)
	}
	return cols, nil
}

// run executes the count and page queries for one resolved column set.
func (s *Service) run(ctx context.Context, term string, cols []string, opts Options) (Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var preds []string
	args := make([]interface{}, 0, len(cols)+len(opts.FileIDs)+2)
	if term != "" {
		pattern := "%" + term + "%"
		for _, c := range cols {
			preds = append(preds, fmt.Sprintf("%s ILIKE ?", schema.QuoteIdent(c)))
			args = append(args, pattern)
		}
	}
	where := "TRUE"
	if len(preds) > 0 {
		where = "(" + strings.Join(preds, " OR ") + ")"
	}
	if len(opts.FileIDs) > 0 {
		ph := make([]string, len(opts.FileIDs))
		for i, id := range opts.FileIDs {
			ph[i] = "?"
			args = append(args, id)
		}
		where += fmt.Sprintf(" AND p.%s IN (%s)", schema.SourceFileColumn, strings.Join(ph, ", "))
	}

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s p WHERE %s", schema.ProductsTable, where)
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count matches: %w", err)
	}

	pageSQL := fmt.Sprintf(`
		SELECT p.*, COALESCE(f.original_filename, '') AS _source_file
		FROM %s p
		LEFT JOIN imported_files f ON f.file_id = p.%s
		WHERE %s
		ORDER BY p.%s, p.rowid
		LIMIT ? OFFSET ?`,
		schema.ProductsTable, schema.SourceFileColumn, where, schema.SourceFileColumn)
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := s.db.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return Result{}, fmt.Errorf("fetch matches: %w", err)
	}
	defer rows.Close()

	out, err := scanSearchRows(rows)
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: out, TotalCount: total, Columns: cols}, nil
}

// SampleRows returns the first n rows owned by fileID in insertion order.
func (s *Service) SampleRows(ctx context.Context, fileID int64, n int) ([]domain.SearchRow, error) {
	if n <= 0 {
		n = 5
	}
	exists, err := s.evolver.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []domain.SearchRow{}, nil
	}

	query := fmt.Sprintf(`
		SELECT p.*, COALESCE(f.original_filename, '') AS _source_file
		FROM %s p
		LEFT JOIN imported_files f ON f.file_id = p.%s
		WHERE p.%s = ?
		ORDER BY p.rowid
		LIMIT ?`,
		schema.ProductsTable, schema.SourceFileColumn, schema.SourceFileColumn)

	rows, err := s.db.QueryContext(ctx, query, fileID, n)
	if err != nil {
		return nil, fmt.Errorf("sample rows for file %d: %w", fileID, err)
	}
	defer rows.Close()
	return scanSearchRows(rows)
}

// scanSearchRows turns a dynamic-width result set into SearchRows, lifting
// the ownership and filename columns out of the value map.
func scanSearchRows(rows *sql.Rows) ([]domain.SearchRow, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []domain.SearchRow{}
	vals := make([]sql.NullString, len(colNames))
	ptrs := make([]interface{}, len(colNames))
	var fileID int64
	for i, name := range colNames {
		if strings.EqualFold(name, schema.SourceFileColumn) {
			ptrs[i] = &fileID
			continue
		}
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := domain.SearchRow{Columns: map[string]string{}}
		for i, name := range colNames {
			switch {
			case strings.EqualFold(name, schema.SourceFileColumn):
				row.SourceFileID = fileID
			case name == "_source_file":
				row.SourceFile = vals[i].String
			default:
				row.Columns[name] = vals[i].String
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// record persists the search best-effort.
func (s *Service) record(term string, count int64, start time.Time) {
	if s.history == nil {
		return
	}
	s.history.Record(domain.SearchRecord{
		Term:        term,
		ResultCount: count,
		SearchedAt:  start.UTC(),
		DurationMS:  float64(time.Since(start).Microseconds()) / 1000,
	})
}
