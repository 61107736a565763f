// Package app provides application-level wiring: it opens the databases,
// runs migrations, and assembles the services the HTTP API and the CLI
// share.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"sheetbase/internal/catalog"
	"sheetbase/internal/config"
	"sheetbase/internal/db"
	"sheetbase/internal/importer"
	"sheetbase/internal/migrate"
	"sheetbase/internal/repository"
	"sheetbase/internal/schema"
	"sheetbase/internal/search"
)

// App holds the wired application: open database handles plus the
// services built on them. Close when done.
type App struct {
	Cfg    *config.Config
	Logger *slog.Logger

	DuckDB    *sql.DB
	HistoryDB *sql.DB

	Catalog  *catalog.Store
	Evolver  *schema.Evolver
	Importer *importer.Importer
	Search   *search.Service
	History  *repository.SearchHistory
}

// New opens the stores, upgrades legacy layouts, and wires every service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	duckDB, err := db.OpenDuckDB(cfg.DBPath, cfg.MemoryLimit, cfg.Threads)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cat := catalog.NewStore(duckDB, cfg.DBPath, logger)
	if err := migrate.Upgrade(ctx, duckDB, cat, logger); err != nil {
		logger.Error("legacy upgrade failed, continuing with base schema", "error", err)
		if err := cat.EnsureBasicSchema(ctx); err != nil {
			duckDB.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	historyDB, err := db.OpenHistorySQLite(cfg.HistoryDBPath)
	if err != nil {
		duckDB.Close()
		return nil, fmt.Errorf("open history sidecar: %w", err)
	}

	evolver := schema.New(duckDB, logger)
	history := repository.NewSearchHistory(historyDB, logger)
	imp := importer.New(duckDB, cat, evolver, logger, cfg.ChunkSize, cfg.FastChunkSize)
	imp.SetDefaultMethod(cfg.ImportMethod)
	svc := search.New(duckDB, cat, evolver, history, logger,
		cfg.DefaultSearchColumns, cfg.SearchLimit, cfg.MaxSearchLimit)

	return &App{
		Cfg:       cfg,
		Logger:    logger,
		DuckDB:    duckDB,
		HistoryDB: historyDB,
		Catalog:   cat,
		Evolver:   evolver,
		Importer:  imp,
		Search:    svc,
		History:   history,
	}, nil
}

// Close releases both database handles.
func (a *App) Close() error {
	return errors.Join(a.DuckDB.Close(), a.HistoryDB.Close())
}
