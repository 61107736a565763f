package sheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReader streams the active worksheet of an .xlsx workbook.
type XLSXReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	total   int64
	closed  bool
}

// OpenXLSX opens path read-only and positions the reader past the header
// row. The total-row estimate comes from the sheet dimension reference,
// which matches the worksheet's max row rather than the last non-blank
// row (legacy estimate semantics). Workbooks that carry no usable
// dimension get a counting pass instead.
func OpenXLSX(path string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %q: %w", path, err)
	}

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx %q has no worksheets", path)
	}

	total := dimensionRowCount(f, sheetName)
	if total == 0 {
		total = scanRowCount(f, sheetName)
	}

	it, err := f.Rows(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("iterate xlsx %q: %w", path, err)
	}

	r := &XLSXReader{file: f, rows: it, total: total}

	if !it.Next() {
		// Empty sheet: no header row, no data.
		r.headers = []string{}
		return r, nil
	}
	raw, err := it.Columns()
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("read header row of %q: %w", path, err)
	}
	r.headers = cleanHeaders(raw)
	return r, nil
}

// Headers returns the cleaned header row.
func (r *XLSXReader) Headers() []string { return r.headers }

// TotalRows returns the data-row estimate (dimension rows minus header).
func (r *XLSXReader) TotalRows() int64 { return r.total }

// Next returns the next data row padded to the header width.
func (r *XLSXReader) Next() ([]string, error) {
	if len(r.headers) == 0 || !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	cells, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	return padRow(cells, len(r.headers)), nil
}

// Close releases the row iterator and workbook.
func (r *XLSXReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	itErr := r.rows.Close()
	fileErr := r.file.Close()
	if itErr != nil {
		return itErr
	}
	return fileErr
}

// dimensionRowCount derives the data-row count from the sheet dimension
// ref ("A1:F120" → 119). Returns 0 when the dimension is missing or
// degenerate.
func dimensionRowCount(f *excelize.File, sheetName string) int64 {
	dim, err := f.GetSheetDimension(sheetName)
	if err != nil || dim == "" {
		return 0
	}
	parts := strings.Split(dim, ":")
	last := parts[len(parts)-1]
	_, row, err := excelize.CellNameToCoordinates(last)
	if err != nil || row <= 1 {
		return 0
	}
	return int64(row - 1)
}

// scanRowCount counts data rows with a dedicated pass over the sheet,
// for workbooks whose dimension ref is missing or stale.
func scanRowCount(f *excelize.File, sheetName string) int64 {
	it, err := f.Rows(sheetName)
	if err != nil {
		return 0
	}
	defer it.Close()

	var n int64
	for it.Next() {
		n++
	}
	if n > 0 {
		n-- // header row
	}
	return n
}
