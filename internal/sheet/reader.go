// Package sheet reads tabular spreadsheet files as headers plus streamed
// rows of text cells. All cell values are treated as text; no numeric or
// date typing is assumed.
package sheet

import (
	"path/filepath"
	"strings"

	"sheetbase/internal/domain"
)

// Reader streams one spreadsheet. Rows come back padded to the header
// width; blank header cells are synthesized as Column_<n>.
type Reader interface {
	// Headers returns the first row's cells, blanks synthesized.
	Headers() []string
	// Next returns the next data row, or io.EOF when exhausted.
	Next() ([]string, error)
	// TotalRows is a cheap upfront estimate of the data row count. It may
	// overcount when trailing blank rows exist past the last data row.
	TotalRows() int64
	// Close releases the underlying file. Safe to call more than once.
	Close() error
}

// SupportedExtension reports whether the core can ingest files with the
// given name's extension.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// Open dispatches on the file extension.
func Open(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return OpenXLSX(path)
	case ".csv":
		return OpenCSV(path)
	default:
		return nil, domain.ErrValidation("unsupported file type %q (expected .xlsx or .csv)", filepath.Ext(path))
	}
}

// cleanHeaders trims header cells and synthesizes names for blanks.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = domain.SynthesizeHeader(i + 1)
		}
		headers[i] = h
	}
	return headers
}

// padRow extends row with empty cells up to width and truncates extras
// beyond the header set.
func padRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
