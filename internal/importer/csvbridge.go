package importer

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
	"sheetbase/internal/sheet"
)

// CSVBridge re-exports the file as a temporary CSV with already-normalized
// headers and hands it to the engine's CSV scan. Last resort before the
// streaming fallback: it survives workbooks that both the engine and the
// appender choke on, at the cost of a full rewrite to disk.
type CSVBridge struct {
	db      *sql.DB
	evolver *schema.Evolver
	logger  *slog.Logger
}

func NewCSVBridge(db *sql.DB, evolver *schema.Evolver, logger *slog.Logger) *CSVBridge {
	return &CSVBridge{db: db, evolver: evolver, logger: logger}
}

func (s *CSVBridge) Name() string { return domain.MethodCSVBridge }

func (s *CSVBridge) Ingest(ctx context.Context, req Request) (int64, error) {
	tmpPath, err := s.exportCSV(req.Path)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmpPath)

	relation := fmt.Sprintf("read_csv(%s, header = true, all_varchar = true)", quoteLiteral(tmpPath))
	return stageAndInsert(ctx, s.db, s.evolver, relation, req.FileID)
}

// exportCSV rewrites the source file as a temporary CSV whose header row
// already carries the normalized column names.
func (s *CSVBridge) exportCSV(path string) (string, error) {
	r, err := sheet.Open(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	mapping := mapColumns(r.Headers())
	if len(mapping.Targets) == 0 {
		return "", fmt.Errorf("file has no columns")
	}

	tmp, err := os.CreateTemp("", "sheetbase_bridge_"+uuid.NewString()[:8]+"_*.csv")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(mapping.Targets); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
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
	for {
		raw, err := r.Next()
		if err != nil {
			if isEOF(err) {
				break
			}
			tmp.Close()
			os.Remove(tmpPath)
			return "", err
		}
		row, hasData := projectRow(raw, srcIdx)
		if !hasData {
			continue
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

var _ Strategy = (*CSVBridge)(nil)
var _ Strategy = (*NativeBulk)(nil)
var _ Strategy = (*AppenderBulk)(nil)
