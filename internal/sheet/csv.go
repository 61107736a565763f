package sheet

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVReader streams a comma-separated file.
type CSVReader struct {
	file    *os.File
	csv     *csv.Reader
	headers []string
	total   int64
	closed  bool
}

// OpenCSV opens path, probes the row count with a single buffered newline
// scan, then positions a csv reader past the header row.
func OpenCSV(path string) (*CSVReader, error) {
	total, err := countCSVRows(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %q: %w", path, err)
	}

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1 // ragged rows are padded by the reader contract

	r := &CSVReader{file: f, csv: cr, total: total}

	header, err := cr.Read()
	if err == io.EOF {
		r.headers = []string{}
		return r, nil
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read csv header of %q: %w", path, err)
	}
	r.headers = cleanHeaders(header)
	return r, nil
}

// Headers returns the cleaned header row.
func (r *CSVReader) Headers() []string { return r.headers }

// TotalRows returns the data-row count from the newline probe.
func (r *CSVReader) TotalRows() int64 { return r.total }

// Next returns the next data row padded to the header width.
func (r *CSVReader) Next() ([]string, error) {
	if len(r.headers) == 0 {
		return nil, io.EOF
	}
	rec, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	return padRow(rec, len(r.headers)), nil
}

// Close releases the underlying file.
func (r *CSVReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// countCSVRows counts data rows (lines minus header) in one buffered
// pass. Quoted embedded newlines are counted as line breaks, so like the
// xlsx dimension probe this is an estimate, not a parse.
func countCSVRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv %q: %w", path, err)
	}
	defer f.Close()

	var lines int64
	var lastByte byte
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				lines++
			}
		}
		if n > 0 {
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("scan csv %q: %w", path, err)
		}
	}
	if lastByte != 0 && lastByte != '\n' {
		lines++ // final line without trailing newline
	}
	if lines <= 1 {
		return 0, nil
	}
	return lines - 1, nil
}
