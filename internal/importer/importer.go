package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sheetbase/internal/catalog"
	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
	"sheetbase/internal/sheet"
)

// indexHints are header fragments that suggest a column is worth indexing.
var indexHints = []string{
	"assembly", "part", "number", "description", "name",
	"model", "sku", "id", "code", "serial",
}

// Importer orchestrates imports: it registers the file, runs the fast
// strategy chain, and falls back to chunked streaming when every fast
// path fails. Every path produces the same result shape.
type Importer struct {
	db            *sql.DB
	catalog       *catalog.Store
	evolver       *schema.Evolver
	logger        *slog.Logger
	chain         []Strategy
	stream        *Streaming
	defaultMethod string
}

func New(db *sql.DB, cat *catalog.Store, evolver *schema.Evolver, logger *slog.Logger, chunkSize, fastChunkSize int) *Importer {
	return &Importer{
		db:      db,
		catalog: cat,
		evolver: evolver,
		logger:  logger,
		chain: []Strategy{
			NewNativeBulk(db, evolver, logger),
			NewAppenderBulk(db, evolver, logger, fastChunkSize),
			NewCSVBridge(db, evolver, logger),
		},
		stream:        NewStreaming(db, evolver, logger, chunkSize),
		defaultMethod: domain.MethodAuto,
	}
}

// SetDefaultMethod pins the method used when an import request does not
// name one. MethodAuto keeps the full chain.
func (imp *Importer) SetDefaultMethod(method string) {
	if method != "" {
		imp.defaultMethod = method
	}
}

// ImportFile ingests the file at path, indexing the requested columns.
// It never returns a Go error for an ingestion failure; the outcome is
// always encoded in the result so callers render success and failure the
// same way.
func (imp *Importer) ImportFile(ctx context.Context, path string, indexedColumns []string, opts domain.ImportOptions) domain.ImportResult {
	start := time.Now()
	filename := filepath.Base(path)
	result := domain.ImportResult{Filename: filename}

	info, err := os.Stat(path)
	if err != nil {
		result.Error = fmt.Sprintf("stat file: %v", err)
		return result
	}
	result.FileSizeMB = float64(info.Size()) / (1024 * 1024)

	if !sheet.SupportedExtension(path) {
		result.Error = fmt.Sprintf("unsupported file type %q", filepath.Ext(path))
		return result
	}

	headers, err := probeHeaders(path)
	if err != nil {
		result.Error = fmt.Sprintf("read headers: %v", err)
		return result
	}

	fileID, err := imp.catalog.RegisterFile(ctx, filename, result.FileSizeMB, indexedColumns)
	if err != nil {
		result.Error = fmt.Sprintf("register file: %v", err)
		return result
	}
	result.FileID = fileID

	if err := imp.catalog.RegisterColumns(ctx, fileID, headers, indexedColumns); err != nil {
		result.Error = fmt.Sprintf("register columns: %v", err)
		imp.fail(ctx, fileID)
		return result
	}

	if opts.Method == "" {
		opts.Method = imp.defaultMethod
	}
	req := Request{Path: path, FileID: fileID}

	rows, method, err := imp.runChain(ctx, req, opts)
	if err != nil {
		imp.logger.Info("falling back to streaming import",
			"file", filename, "file_id", fileID, "reason", err.Error())
		rows, err = imp.stream.Run(ctx, req, opts.Progress)
		method = domain.MethodStreaming
	}
	if err != nil {
		result.Method = method
		result.Error = err.Error()
		result.DurationSeconds = time.Since(start).Seconds()
		imp.fail(ctx, fileID)
		return result
	}

	if err := imp.finalize(ctx, fileID, rows, indexedColumns); err != nil {
		result.Method = method
		result.Error = fmt.Sprintf("finalize import: %v", err)
		result.DurationSeconds = time.Since(start).Seconds()
		imp.fail(ctx, fileID)
		return result
	}

	result.Success = true
	result.Method = method
	result.RowsImported = rows
	result.DurationSeconds = time.Since(start).Seconds()
	imp.logger.Info("import complete",
		"file", filename, "file_id", fileID, "method", method,
		"rows", rows, "seconds", result.DurationSeconds)
	return result
}

// runChain tries the fast strategies in order and returns the first
// success. A non-nil error means every eligible strategy failed (or none
// were eligible) and the caller should stream.
func (imp *Importer) runChain(ctx context.Context, req Request, opts domain.ImportOptions) (int64, string, error) {
	if opts.DisableFast || opts.Method == domain.MethodStreaming {
		return 0, "", fmt.Errorf("fast strategies disabled")
	}
	var lastErr error
	tried := 0
	for _, strat := range imp.chain {
		if opts.Method != "" && opts.Method != domain.MethodAuto && opts.Method != strat.Name() {
			continue
		}
		tried++
		rows, err := strat.Ingest(ctx, req)
		if err == nil {
			return rows, strat.Name(), nil
		}
		lastErr = domain.ErrStrategy(strat.Name(), err, "ingest failed")
		imp.logger.Warn("import strategy failed",
			"strategy", strat.Name(), "file_id", req.FileID, "error", err)
	}
	if tried == 0 {
		return 0, "", fmt.Errorf("no strategy matches method %q", opts.Method)
	}
	return 0, "", lastErr
}

func (imp *Importer) finalize(ctx context.Context, fileID, rows int64, indexedColumns []string) error {
	if err := imp.catalog.UpdateFileStats(ctx, fileID, rows); err != nil {
		return err
	}
	return imp.catalog.CreateIndexes(ctx, fileID, indexedColumns)
}

// fail marks the registry entry so a botched import is visible instead of
// silently listed as active.
func (imp *Importer) fail(ctx context.Context, fileID int64) {
	if err := imp.catalog.MarkFileStatus(ctx, fileID, domain.FileError); err != nil {
		imp.logger.Warn("mark file errored", "file_id", fileID, "error", err)
	}
}

// Preview reads the header row and up to limit data rows without touching
// the store, and suggests columns to index based on common key headers.
func (imp *Importer) Preview(path string, limit int) (domain.FilePreview, error) {
	r, err := sheet.Open(path)
	if err != nil {
		return domain.FilePreview{}, err
	}
	defer r.Close()

	headers := domain.NormalizeColumns(r.Headers())
	preview := domain.FilePreview{
		Filename:         filepath.Base(path),
		Headers:          headers,
		TotalRows:        r.TotalRows(),
		SuggestedIndexes: suggestIndexes(r.Headers()),
	}
	if info, err := os.Stat(path); err == nil {
		preview.FileSizeMB = float64(info.Size()) / (1024 * 1024)
	}
	for len(preview.Rows) < limit {
		raw, err := r.Next()
		if err != nil {
			if isEOF(err) {
				break
			}
			return domain.FilePreview{}, err
		}
		row := make(map[string]string, len(headers))
		hasData := false
		for i, h := range headers {
			v := ""
			if i < len(raw) {
				v = strings.TrimSpace(raw[i])
			}
			row[h] = v
			if v != "" {
				hasData = true
			}
		}
		if hasData {
			preview.Rows = append(preview.Rows, row)
		}
	}
	return preview, nil
}

func suggestIndexes(headers []string) []string {
	var out []string
	for _, h := range domain.NormalizeColumns(headers) {
		lower := strings.ToLower(h)
		for _, hint := range indexHints {
			if strings.Contains(lower, hint) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func probeHeaders(path string) ([]string, error) {
	r, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Headers(), nil
}
