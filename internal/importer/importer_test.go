package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetbase/internal/catalog"
	internaldb "sheetbase/internal/db"
	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

func newTestImporter(t *testing.T) (*Importer, *catalog.Store, *sql.DB) {
	t.Helper()

	dbh := internaldb.OpenTestDuckDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cat := catalog.NewStore(dbh, "", logger)
	require.NoError(t, cat.EnsureBasicSchema(context.Background()))
	evolver := schema.New(dbh, logger)

	return New(dbh, cat, evolver, logger, 2, 100000), cat, dbh
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func countRowsFor(t *testing.T, dbh *sql.DB, fileID int64) int64 {
	t.Helper()
	var n int64
	err := dbh.QueryRow(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s = ?", schema.ProductsTable, schema.SourceFileColumn,
	), fileID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()

	t.Run("happy_path_csv", func(t *testing.T) {
		imp, cat, dbh := newTestImporter(t)
		path := writeCSV(t, "parts.csv",
			"Part Number,Description\nA-1,Widget\nA-2,Sprocket\nA-3,Gizmo\n")

		res := imp.ImportFile(ctx, path, []string{"Part Number"}, domain.ImportOptions{Method: domain.MethodAuto})

		require.True(t, res.Success, "error: %s", res.Error)
		assert.Equal(t, int64(3), res.RowsImported)
		assert.Equal(t, "parts.csv", res.Filename)
		assert.NotZero(t, res.FileID)
		assert.Equal(t, int64(3), countRowsFor(t, dbh, res.FileID))

		file, err := cat.GetFile(ctx, res.FileID)
		require.NoError(t, err)
		assert.Equal(t, domain.FileActive, file.Status)
		assert.Equal(t, int64(3), file.RowCount)
	})

	t.Run("streaming_only", func(t *testing.T) {
		imp, _, dbh := newTestImporter(t)
		path := writeCSV(t, "stream.csv",
			"Name,Code\na,1\nb,2\nc,3\nd,4\ne,5\n")

		var updates []domain.ImportProgress
		res := imp.ImportFile(ctx, path, nil, domain.ImportOptions{
			DisableFast: true,
			Progress:    func(p domain.ImportProgress) { updates = append(updates, p) },
		})

		require.True(t, res.Success, "error: %s", res.Error)
		assert.Equal(t, domain.MethodStreaming, res.Method)
		assert.Equal(t, int64(5), res.RowsImported)
		assert.Equal(t, int64(5), countRowsFor(t, dbh, res.FileID))
		require.NotEmpty(t, updates)
		last := updates[len(updates)-1]
		assert.Equal(t, int64(5), last.RowsProcessed)
		assert.InDelta(t, 100.0, last.Percent, 0.01)
	})

	t.Run("skips_blank_rows", func(t *testing.T) {
		imp, _, dbh := newTestImporter(t)
		path := writeCSV(t, "blanks.csv",
			"Name,Code\na,1\n,\n  ,  \nb,2\n")

		res := imp.ImportFile(ctx, path, nil, domain.ImportOptions{DisableFast: true})

		require.True(t, res.Success, "error: %s", res.Error)
		assert.Equal(t, int64(2), res.RowsImported)
		assert.Equal(t, int64(2), countRowsFor(t, dbh, res.FileID))
	})

	t.Run("two_files_evolve_schema", func(t *testing.T) {
		imp, _, dbh := newTestImporter(t)
		first := writeCSV(t, "first.csv", "Alpha,Beta\n1,2\n")
		second := writeCSV(t, "second.csv", "Beta,Gamma\n3,4\n")

		res1 := imp.ImportFile(ctx, first, nil, domain.ImportOptions{DisableFast: true})
		require.True(t, res1.Success, "error: %s", res1.Error)
		res2 := imp.ImportFile(ctx, second, nil, domain.ImportOptions{DisableFast: true})
		require.True(t, res2.Success, "error: %s", res2.Error)

		// Rows from the first file must read back as empty strings in the
		// column the second file introduced.
		var gamma string
		err := dbh.QueryRow(fmt.Sprintf(
			`SELECT "gamma" FROM %s WHERE %s = ?`, schema.ProductsTable, schema.SourceFileColumn,
		), res1.FileID).Scan(&gamma)
		require.NoError(t, err)
		assert.Equal(t, "", gamma)
	})

	t.Run("unsupported_extension", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		path := writeCSV(t, "notes.txt", "whatever")

		res := imp.ImportFile(ctx, path, nil, domain.ImportOptions{})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "unsupported file type")
		assert.Zero(t, res.FileID)
	})

	t.Run("missing_file", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)

		res := imp.ImportFile(ctx, filepath.Join(t.TempDir(), "nope.csv"), nil, domain.ImportOptions{})

		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})

	t.Run("failed_import_marks_file_errored", func(t *testing.T) {
		imp, cat, _ := newTestImporter(t)
		// Header parses, but the quoted record below it never terminates,
		// so even the streaming fallback errors out.
		path := writeCSV(t, "broken.csv", "Name\nok\n\"unterminated\n")
		imp.chain = []Strategy{failingStrategy{}}

		res := imp.ImportFile(ctx, path, nil, domain.ImportOptions{})

		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
		files, err := cat.ListFiles(ctx)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, domain.FileError, files[0].Status)
	})
}

// failingStrategy always errors; used to exercise fallback handling.
type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Ingest(context.Context, Request) (int64, error) {
	return 0, fmt.Errorf("synthetic failure")
}

// recordingStrategy notes whether it ran and optionally succeeds.
type recordingStrategy struct {
	name string
	rows int64
	err  error
	ran  *bool
}

func (s recordingStrategy) Name() string { return s.name }
func (s recordingStrategy) Ingest(context.Context, Request) (int64, error) {
	*s.ran = true
	return s.rows, s.err
}

func TestRunChain(t *testing.T) {
	ctx := context.Background()

	t.Run("first_success_wins", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		var ranA, ranB bool
		imp.chain = []Strategy{
			recordingStrategy{name: "a", rows: 7, ran: &ranA},
			recordingStrategy{name: "b", rows: 9, ran: &ranB},
		}

		rows, method, err := imp.runChain(ctx, Request{FileID: 1}, domain.ImportOptions{Method: domain.MethodAuto})

		require.NoError(t, err)
		assert.Equal(t, int64(7), rows)
		assert.Equal(t, "a", method)
		assert.True(t, ranA)
		assert.False(t, ranB)
	})

	t.Run("falls_through_on_failure", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		var ranA, ranB bool
		imp.chain = []Strategy{
			recordingStrategy{name: "a", err: fmt.Errorf("boom"), ran: &ranA},
			recordingStrategy{name: "b", rows: 9, ran: &ranB},
		}

		rows, method, err := imp.runChain(ctx, Request{FileID: 1}, domain.ImportOptions{})

		require.NoError(t, err)
		assert.Equal(t, int64(9), rows)
		assert.Equal(t, "b", method)
		assert.True(t, ranA)
		assert.True(t, ranB)
	})

	t.Run("all_fail_returns_strategy_failure", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		var ran bool
		imp.chain = []Strategy{recordingStrategy{name: "a", err: fmt.Errorf("boom"), ran: &ran}}

		_, _, err := imp.runChain(ctx, Request{FileID: 1}, domain.ImportOptions{})

		require.Error(t, err)
		var sf *domain.StrategyFailure
		require.ErrorAs(t, err, &sf)
		assert.Equal(t, "a", sf.Strategy)
	})

	t.Run("pinned_method_filters_chain", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		var ranA, ranB bool
		imp.chain = []Strategy{
			recordingStrategy{name: "a", rows: 7, ran: &ranA},
			recordingStrategy{name: "b", rows: 9, ran: &ranB},
		}

		rows, method, err := imp.runChain(ctx, Request{FileID: 1}, domain.ImportOptions{Method: "b"})

		require.NoError(t, err)
		assert.Equal(t, int64(9), rows)
		assert.Equal(t, "b", method)
		assert.False(t, ranA)
	})

	t.Run("disable_fast_skips_everything", func(t *testing.T) {
		imp, _, _ := newTestImporter(t)
		var ran bool
		imp.chain = []Strategy{recordingStrategy{name: "a", rows: 7, ran: &ran}}

		_, _, err := imp.runChain(ctx, Request{FileID: 1}, domain.ImportOptions{DisableFast: true})

		require.Error(t, err)
		assert.False(t, ran)
	})
}

func TestPreview(t *testing.T) {
	imp, _, _ := newTestImporter(t)
	path := writeCSV(t, "preview.csv",
		"Part Number,Color\nA-1,red\nA-2,blue\nA-3,green\n")

	preview, err := imp.Preview(path, 2)

	require.NoError(t, err)
	assert.Equal(t, "preview.csv", preview.Filename)
	assert.Equal(t, []string{"Part_Number", "Color"}, preview.Headers)
	assert.Equal(t, []string{"Part_Number"}, preview.SuggestedIndexes)
	assert.Equal(t, int64(3), preview.TotalRows)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, "A-1", preview.Rows[0]["Part_Number"])
}

func TestAppenderRemoveRows(t *testing.T) {
	ctx := context.Background()
	imp, _, dbh := newTestImporter(t)

	res1 := imp.ImportFile(ctx, writeCSV(t, "one.csv", "Name\nalpha\nbeta\n"), nil, domain.ImportOptions{})
	require.True(t, res1.Success, res1.Error)
	res2 := imp.ImportFile(ctx, writeCSV(t, "two.csv", "Name\ngamma\n"), nil, domain.ImportOptions{})
	require.True(t, res2.Success, res2.Error)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	app := NewAppenderBulk(dbh, schema.New(dbh, logger), logger, 10)

	conn, err := dbh.Conn(ctx)
	require.NoError(t, err)
	app.removeRows(conn, res1.FileID)
	require.NoError(t, conn.Close())

	assert.Equal(t, int64(0), countRowsFor(t, dbh, res1.FileID), "failed append leaves no rows behind")
	assert.Equal(t, int64(1), countRowsFor(t, dbh, res2.FileID), "other files are untouched")
}

func TestMapColumns(t *testing.T) {
	t.Run("dedupes_collisions", func(t *testing.T) {
		m := mapColumns([]string{"Part Number", "part-number", "Color"})
		assert.Equal(t, []string{"Part_Number", "Color"}, m.Targets)
		assert.Equal(t, []string{"Part Number", "Color"}, m.Sources)
	})

	t.Run("drops_ownership_collision", func(t *testing.T) {
		m := mapColumns([]string{"Source File ID", "Name"})
		assert.Equal(t, []string{"Name"}, m.Targets)
	})
}
