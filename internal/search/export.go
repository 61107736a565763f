package search

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

// Export formats. JSON streams the row objects; CSV emits a header row in
// table column order with the filename side channel first.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export runs a search and writes every match to w in the given format,
// returning the number of rows written. Unset limits widen to the
// service's maximum rather than the interactive default.
func (s *Service) Export(ctx context.Context, w io.Writer, format, term string, opts Options) (int64, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.maxLimit
	}
	res, err := s.Search(ctx, term, opts)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(format) {
	case FormatCSV:
		if err := s.writeCSV(ctx, w, res.Rows); err != nil {
			return 0, err
		}
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Rows); err != nil {
			return 0, err
		}
	default:
		return 0, domain.ErrValidation("unsupported export format %q", format)
	}
	return int64(len(res.Rows)), nil
}

func (s *Service) writeCSV(ctx context.Context, w io.Writer, rows []domain.SearchRow) error {
	tableCols, err := s.evolver.TableColumns(ctx)
	if err != nil {
		return err
	}
	dataCols := make([]string, 0, len(tableCols))
	for _, c := range tableCols {
		if !strings.EqualFold(c, schema.SourceFileColumn) {
			dataCols = append(dataCols, c)
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"_source_file", schema.SourceFileColumn}, dataCols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		record[0] = row.SourceFile
		record[1] = strconv.FormatInt(row.SourceFileID, 10)
		for i, c := range dataCols {
			record[2+i] = row.Columns[c]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
