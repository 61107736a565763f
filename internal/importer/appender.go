package importer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
	"sheetbase/internal/sheet"
)

// AppenderBulk loads the whole file into memory through the Go readers and
// streams it into the shared table with the engine's appender API. Slower
// than the native scan but tolerant of files the engine cannot parse, and
// still far faster than row-at-a-time inserts.
type AppenderBulk struct {
	db      *sql.DB
	evolver *schema.Evolver
	logger  *slog.Logger
	batch   int
}

func NewAppenderBulk(db *sql.DB, evolver *schema.Evolver, logger *slog.Logger, batch int) *AppenderBulk {
	if batch <= 0 {
		batch = 100000
	}
	return &AppenderBulk{db: db, evolver: evolver, logger: logger, batch: batch}
}

func (s *AppenderBulk) Name() string { return domain.MethodAppenderBulk }

func (s *AppenderBulk) Ingest(ctx context.Context, req Request) (int64, error) {
	r, err := sheet.Open(req.Path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	mapping := mapColumns(r.Headers())
	if len(mapping.Targets) == 0 {
		return 0, fmt.Errorf("file has no columns")
	}
	rows, err := readAllRows(r, mapping)
	if err != nil {
		return 0, err
	}

	if err := s.evolver.EnsureTable(ctx, mapping.Targets); err != nil {
		return 0, err
	}
	if err := s.evolver.EnsureColumns(ctx, mapping.Targets); err != nil {
		return 0, err
	}
	tableCols, err := s.evolver.TableColumns(ctx)
	if err != nil {
		return 0, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Position of each of the file's columns within the full table layout.
	slot := make(map[string]int, len(tableCols))
	for i, c := range tableCols {
		slot[strings.ToLower(c)] = i
	}

	var inserted int64
	err = conn.Raw(func(driverConn interface{}) error {
		app, err := duckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", schema.ProductsTable)
		if err != nil {
			return err
		}
		vals := make([]driver.Value, len(tableCols))
		for _, row := range rows {
			for i := range vals {
				vals[i] = ""
			}
			vals[slot[schema.SourceFileColumn]] = int32(req.FileID)
			for j, target := range mapping.Targets {
				if idx, ok := slot[strings.ToLower(target)]; ok {
					vals[idx] = row[j]
				}
			}
			if err := app.AppendRow(vals...); err != nil {
				app.Close()
				return err
			}
			inserted++
			if inserted%int64(s.batch) == 0 {
				if err := app.Flush(); err != nil {
					app.Close()
					return err
				}
			}
		}
		return app.Close()
	})
	if err != nil {
		s.removeRows(conn, req.FileID)
		return 0, fmt.Errorf("append rows: %w", err)
	}
	return inserted, nil
}

// removeRows deletes everything tagged with fileID so a failed append
// leaves nothing behind for the next strategy to duplicate. Earlier
// flushes have already committed, which is why the delete is needed.
// Runs on the held connection and without the caller's context so
// cancellation cannot strand rows.
func (s *AppenderBulk) removeRows(conn *sql.Conn, fileID int64) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", schema.ProductsTable, schema.SourceFileColumn)
	if _, err := conn.ExecContext(context.Background(), query, fileID); err != nil {
		s.logger.Warn("clean up partial append", "file_id", fileID, "error", err)
	}
}

// readAllRows drains the reader, keeping values aligned with the mapping's
// targets and dropping rows with no data at all.
func readAllRows(r sheet.Reader, mapping columnMapping) ([][]string, error) {
	headers := r.Headers()
	srcIdx := make([]int, len(mapping.Sources))
	for i, src := range mapping.Sources {
		srcIdx[i] = -1
		for j, h := range headers {
			if h == src {
				srcIdx[i] = j
				break
			}
		}
	}
	var out [][]string
	for {
		raw, err := r.Next()
		if err != nil {
			if isEOF(err) {
				return out, nil
			}
			return nil, err
		}
		row, hasData := projectRow(raw, srcIdx)
		if hasData {
			out = append(out, row)
		}
	}
}

// projectRow reorders a raw row into mapping order, trimming whitespace.
func projectRow(raw []string, srcIdx []int) ([]string, bool) {
	row := make([]string, len(srcIdx))
	hasData := false
	for i, idx := range srcIdx {
		if idx >= 0 && idx < len(raw) {
			row[i] = strings.TrimSpace(raw[idx])
		}
		if row[i] != "" {
			hasData = true
		}
	}
	return row, hasData
}
