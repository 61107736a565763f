package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "sheetbase/internal/db"
	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

func newTestStore(t *testing.T) (*Store, *schema.Evolver, context.Context) {
	t.Helper()
	dbh := internaldb.OpenTestDuckDB(t)
	logger := slog.Default()

	store := NewStore(dbh, "", logger)
	evolver := schema.New(dbh, logger)
	ctx := context.Background()
	require.NoError(t, store.EnsureBasicSchema(ctx))
	return store, evolver, ctx
}

func TestStore_RegisterFile_MonotonicIDs(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id1, err := store.RegisterFile(ctx, "a.xlsx", 1.5, []string{"SKU"})
	require.NoError(t, err)
	id2, err := store.RegisterFile(ctx, "b.xlsx", 2.0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	// Deleting the newest file must not free its id for reuse.
	require.NoError(t, store.DeleteFile(ctx, id2))
	id3, err := store.RegisterFile(ctx, "c.xlsx", 0.1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id3)
}

func TestStore_RegisterFile_NormalizesIndexedColumns(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id, err := store.RegisterFile(ctx, "a.xlsx", 1, []string{"Part Number", "Description"})
	require.NoError(t, err)

	f, err := store.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Part_Number", "Description"}, f.IndexedColumns)
	assert.Equal(t, domain.FileActive, f.Status)
	assert.Equal(t, int64(0), f.RowCount)
}

func TestStore_UpdateFileStats(t *testing.T) {
	store, _, ctx := newTestStore(t)
	id, err := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateFileStats(ctx, id, 100))
	require.NoError(t, store.UpdateFileStats(ctx, id, 100), "idempotent")

	f, err := store.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.RowCount)

	err = store.UpdateFileStats(ctx, 999, 1)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStore_RegisterColumns_Upsert(t *testing.T) {
	store, _, ctx := newTestStore(t)
	id, err := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	require.NoError(t, err)

	require.NoError(t, store.RegisterColumns(ctx, id, []string{"SKU", "Name"}, []string{"SKU"}))

	cols, err := store.ColumnsForFile(ctx, id)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, domain.ColumnInfo{Name: "Name", Indexed: false}, cols[0])
	assert.Equal(t, domain.ColumnInfo{Name: "SKU", Indexed: true}, cols[1])

	// Last write wins for is_indexed.
	require.NoError(t, store.RegisterColumns(ctx, id, []string{"SKU", "Name"}, []string{"Name"}))
	cols, err = store.ColumnsForFile(ctx, id)
	require.NoError(t, err)
	assert.True(t, cols[0].Indexed)
	assert.False(t, cols[1].Indexed)
}

func TestStore_DeleteFile_AtomicSoftDelete(t *testing.T) {
	store, evolver, ctx := newTestStore(t)

	id, err := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	require.NoError(t, err)
	require.NoError(t, store.RegisterColumns(ctx, id, []string{"SKU"}, []string{"SKU"}))
	require.NoError(t, evolver.EnsureTable(ctx, []string{"SKU"}))
	_, err = store.db.ExecContext(ctx, `INSERT INTO products (source_file_id, "SKU") VALUES (?, 'x')`, id)
	require.NoError(t, err)

	require.NoError(t, store.DeleteFile(ctx, id))

	// Rows gone, column registry gone, registry entry survives as deleted.
	var n int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE source_file_id = ?`, id).Scan(&n))
	assert.Zero(t, n)

	cols, err := store.ColumnsForFile(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cols)

	f, err := store.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.FileDeleted, f.Status)

	files, err := store.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1, "soft delete keeps the registry entry")

	// Double delete is a conflict, unknown id a not-found.
	var conflict *domain.ConflictError
	assert.ErrorAs(t, store.DeleteFile(ctx, id), &conflict)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, store.DeleteFile(ctx, 42), &notFound)
}

func TestStore_DeleteFile_BeforeTableExists(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id, err := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	require.NoError(t, err)

	// No products table yet: delete must still succeed.
	require.NoError(t, store.DeleteFile(ctx, id))
}

func TestStore_IndexedColumns_Scoped(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id1, _ := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	id2, _ := store.RegisterFile(ctx, "b.xlsx", 1, nil)
	require.NoError(t, store.RegisterColumns(ctx, id1, []string{"SKU", "Name"}, []string{"SKU"}))
	require.NoError(t, store.RegisterColumns(ctx, id2, []string{"SKU", "Desc"}, []string{"Desc", "SKU"}))

	all, err := store.IndexedColumns(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Desc", "SKU"}, all)

	scoped, err := store.IndexedColumns(ctx, []int64{id1})
	require.NoError(t, err)
	assert.Equal(t, []string{"SKU"}, scoped)
}

func TestStore_UpdateIndexedColumns(t *testing.T) {
	store, evolver, ctx := newTestStore(t)

	id, _ := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	require.NoError(t, store.RegisterColumns(ctx, id, []string{"SKU", "Name"}, []string{"SKU"}))
	require.NoError(t, evolver.EnsureTable(ctx, []string{"SKU", "Name"}))
	require.NoError(t, store.CreateIndexes(ctx, id, []string{"SKU"}))

	require.NoError(t, store.UpdateIndexedColumns(ctx, id, []string{"Name"}))

	cols, err := store.IndexedColumns(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, cols)

	f, err := store.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, f.IndexedColumns)

	// Reindexing swaps the materialized indexes instead of accumulating them.
	assert.True(t, indexExists(t, store, "idx_name_1"))
	assert.False(t, indexExists(t, store, "idx_sku_1"))

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, store.UpdateIndexedColumns(ctx, 99, []string{"X"}), &notFound)
}

func indexExists(t *testing.T, store *Store, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, store.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM duckdb_indexes() WHERE index_name = ?`, name).Scan(&n))
	return n > 0
}

func TestStore_Stats(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id1, _ := store.RegisterFile(ctx, "a.xlsx", 1.5, nil)
	id2, _ := store.RegisterFile(ctx, "b.xlsx", 2.5, nil)
	require.NoError(t, store.UpdateFileStats(ctx, id1, 10))
	require.NoError(t, store.UpdateFileStats(ctx, id2, 20))
	require.NoError(t, store.DeleteFile(ctx, id2))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalFiles, "deleted files excluded from totals")
	assert.Equal(t, int64(10), stats.TotalRecords)
	assert.InDelta(t, 1.5, stats.TotalFileSizeMB, 0.001)
	assert.Len(t, stats.Files, 2, "per-file breakdown keeps the audit trail")
}

func TestStore_AllColumns_ActiveOnly(t *testing.T) {
	store, _, ctx := newTestStore(t)

	id1, _ := store.RegisterFile(ctx, "a.xlsx", 1, nil)
	id2, _ := store.RegisterFile(ctx, "b.xlsx", 1, nil)
	require.NoError(t, store.RegisterColumns(ctx, id1, []string{"SKU"}, nil))
	require.NoError(t, store.RegisterColumns(ctx, id2, []string{"Other"}, nil))
	require.NoError(t, store.DeleteFile(ctx, id2))

	cols, err := store.AllColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SKU"}, cols)
}
