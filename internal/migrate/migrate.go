// Package migrate upgrades stores created before multi-file support,
// where the shared table had no ownership column and the registry tables
// did not exist.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sheetbase/internal/catalog"
	"sheetbase/internal/domain"
	"sheetbase/internal/schema"
)

const legacyFilename = "Legacy Import"

// Upgrade brings a store up to the current layout. Fresh stores and
// already-upgraded stores pass through untouched; a legacy single-file
// table is rebuilt with its rows adopted under a synthetic registry entry.
// Safe to run on every startup.
func Upgrade(ctx context.Context, db *sql.DB, cat *catalog.Store, logger *slog.Logger) error {
	if err := cat.EnsureBasicSchema(ctx); err != nil {
		return err
	}

	evolver := schema.New(db, logger)
	exists, err := evolver.TableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	cols, err := evolver.TableColumns(ctx)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if strings.EqualFold(c, schema.SourceFileColumn) {
			return nil
		}
	}

	logger.Info("upgrading legacy single-file store", "columns", len(cols))

	var rowCount int64
	if err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", schema.ProductsTable)).Scan(&rowCount); err != nil {
		return domain.ErrMigration(err, "count legacy rows")
	}

	if rowCount == 0 {
		_, err := db.ExecContext(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s INTEGER",
			schema.ProductsTable, schema.SourceFileColumn))
		if err != nil {
			return domain.ErrMigration(err, "add ownership column")
		}
		return nil
	}

	if err := adoptLegacyRows(ctx, db, cols); err != nil {
		recordFailure(ctx, cat, logger)
		return err
	}

	fileID, err := cat.RegisterFile(ctx, legacyFilename, 0, nil)
	if err != nil {
		return domain.ErrMigration(err, "register legacy file")
	}
	if fileID != 1 {
		logger.Warn("legacy file registered with unexpected id", "file_id", fileID)
	}
	if err := cat.RegisterColumns(ctx, fileID, cols, nil); err != nil {
		return domain.ErrMigration(err, "register legacy columns")
	}
	if err := cat.UpdateFileStats(ctx, fileID, rowCount); err != nil {
		return domain.ErrMigration(err, "record legacy row count")
	}

	logger.Info("legacy store upgraded", "rows", rowCount, "file_id", fileID)
	return nil
}

// adoptLegacyRows rebuilds the shared table with the ownership column and
// copies every legacy row across tagged as file 1, all in one transaction
// so a failure leaves the original table in place.
func adoptLegacyRows(ctx context.Context, db *sql.DB, cols []string) error {
	backup := fmt.Sprintf("%s_backup_%d", schema.ProductsTable, time.Now().Unix())

	quoted := make([]string, len(cols))
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, schema.SourceFileColumn+" INTEGER")
	for i, c := range cols {
		quoted[i] = schema.QuoteIdent(c)
		defs = append(defs, quoted[i]+" VARCHAR DEFAULT ''")
	}
	colList := strings.Join(quoted, ", ")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrMigration(err, "begin legacy upgrade")
	}
	defer tx.Rollback()

	steps := []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", schema.ProductsTable, backup),
		fmt.Sprintf("CREATE TABLE %s (%s)", schema.ProductsTable, strings.Join(defs, ", ")),
		fmt.Sprintf("INSERT INTO %s (%s, %s) SELECT 1, %s FROM %s",
			schema.ProductsTable, schema.SourceFileColumn, colList, colList, backup),
		fmt.Sprintf("DROP TABLE %s", backup),
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return domain.ErrMigration(err, "rebuild shared table")
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrMigration(err, "commit legacy upgrade")
	}
	return nil
}

// recordFailure leaves an errored registry entry behind so the failed
// upgrade is visible in file listings. Best-effort.
func recordFailure(ctx context.Context, cat *catalog.Store, logger *slog.Logger) {
	fileID, err := cat.RegisterFile(ctx, legacyFilename+" (Migration Failed)", 0, nil)
	if err != nil {
		logger.Warn("record migration failure", "error", err)
		return
	}
	if err := cat.MarkFileStatus(ctx, fileID, domain.FileError); err != nil {
		logger.Warn("record migration failure", "error", err)
	}
}
