// Package importer turns spreadsheets into rows of the shared table,
// evolving the schema on the fly and choosing among ingestion strategies
// with automatic fallback.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

// Request describes one ingestion attempt handed to a strategy.
type Request struct {
	Path   string
	FileID int64
}

// Strategy is one way to ingest a spreadsheet. Implementations must
// contain their own failures: an unreadable file is an error return,
// never a panic or a half-applied insert.
type Strategy interface {
	Name() string
	// Ingest reads the file at req.Path and inserts its rows tagged with
	// req.FileID, returning the number of rows inserted.
	Ingest(ctx context.Context, req Request) (int64, error)
}

// columnMapping pairs the shared table's normalized column names with the
// source columns they came from, deduplicating collisions (first source
// wins) and dropping anything that collides with the ownership column.
type columnMapping struct {
	Targets []string // normalized, unique
	Sources []string // raw source column per target
}

func mapColumns(sourceCols []string) columnMapping {
	var m columnMapping
	seen := map[string]struct{}{strings.ToLower(schema.SourceFileColumn): {}}
	for _, src := range sourceCols {
		norm := domain.NormalizeColumn(src)
		key := strings.ToLower(norm)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		m.Targets = append(m.Targets, norm)
		m.Sources = append(m.Sources, src)
	}
	return m
}

// insertColumnList renders the target column list for an INSERT,
// ownership column first.
func (m columnMapping) insertColumnList() string {
	parts := make([]string, 0, len(m.Targets)+1)
	parts = append(parts, schema.SourceFileColumn)
	for _, t := range m.Targets {
		parts = append(parts, schema.QuoteIdent(t))
	}
	return strings.Join(parts, ", ")
}

// sourceSelectList renders the quoted source column list for a SELECT
// out of a staging relation.
func (m columnMapping) sourceSelectList() string {
	parts := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		parts[i] = schema.QuoteIdent(s)
	}
	return strings.Join(parts, ", ")
}

// relationColumns probes a relation expression for its column names
// without materializing any rows.
func relationColumns(ctx context.Context, q queryer, relation string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", relation))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func isEOF(err error) bool { return errors.Is(err, io.EOF) }

// quoteLiteral single-quotes a string literal for embedding in SQL that
// cannot take placeholders (table function arguments).
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
