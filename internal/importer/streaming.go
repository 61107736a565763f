package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
	"sheetbase/internal/sheet"
)

// Streaming is the always-works fallback: rows are read in chunks and each
// chunk is inserted inside its own transaction, so memory stays bounded and
// a crash loses at most one chunk. A failed chunk is terminal for the
// import; there is no further fallback below this.
type Streaming struct {
	db        *sql.DB
	evolver   *schema.Evolver
	logger    *slog.Logger
	chunkSize int
}

func NewStreaming(db *sql.DB, evolver *schema.Evolver, logger *slog.Logger, chunkSize int) *Streaming {
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	return &Streaming{db: db, evolver: evolver, logger: logger, chunkSize: chunkSize}
}

func (s *Streaming) Name() string { return domain.MethodStreaming }

// Run ingests the file chunk by chunk, invoking progress after each
// committed chunk. Distinct from Strategy.Ingest so callers can attach a
// progress callback; the chain never routes through Run.
func (s *Streaming) Run(ctx context.Context, req Request, progress domain.ProgressFunc) (int64, error) {
	r, err := sheet.Open(req.Path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	mapping := mapColumns(r.Headers())
	if len(mapping.Targets) == 0 {
		return 0, fmt.Errorf("file has no columns")
	}
	if err := s.evolver.EnsureTable(ctx, mapping.Targets); err != nil {
		return 0, err
	}
	if err := s.evolver.EnsureColumns(ctx, mapping.Targets); err != nil {
		return 0, err
	}

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

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		schema.ProductsTable, mapping.insertColumnList(), strings.Repeat(", ?", len(mapping.Targets)))

	total := r.TotalRows()
	var inserted, processed int64
	chunk := make([][]string, 0, s.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := s.insertChunk(ctx, insertSQL, req.FileID, chunk); err != nil {
			return domain.ErrBatchInsert(err, "chunk of %d rows after %d inserted", len(chunk), inserted)
		}
		inserted += int64(len(chunk))
		chunk = chunk[:0]
		if progress != nil {
			progress(progressOf(processed, total))
		}
		return nil
	}

	for {
		raw, err := r.Next()
		if err != nil {
			if isEOF(err) {
				break
			}
			return inserted, err
		}
		processed++
		row, hasData := projectRow(raw, srcIdx)
		if !hasData {
			continue
		}
		chunk = append(chunk, row)
		if len(chunk) >= s.chunkSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// insertChunk writes one chunk in a single transaction.
func (s *Streaming) insertChunk(ctx context.Context, insertSQL string, fileID int64, chunk [][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]interface{}, 0, 1+len(chunk[0]))
	for _, row := range chunk {
		args = args[:0]
		args = append(args, fileID)
		for _, v := range row {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func progressOf(processed, total int64) domain.ImportProgress {
	p := domain.ImportProgress{RowsProcessed: processed, TotalRows: total}
	if total > 0 {
		p.Percent = float64(processed) / float64(total) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}
