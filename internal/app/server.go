package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"

	"sheetbase/internal/api"
	"sheetbase/internal/middleware"
)

// Router assembles the chi router with the full middleware stack and
// every API route mounted.
func (a *App) Router() http.Handler {
	h := api.NewHandler(a.Importer, a.Search, a.Catalog, a.History, a.Logger, a.Cfg.MaxUploadMB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(a.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.Cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: a.Cfg.RateLimitRPS,
		Burst:             a.Cfg.RateLimitBurst,
	}))

	r.Get("/healthz", h.Healthz)
	r.Route("/v1", h.Routes)
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
// A cron job prunes old search history entries daily.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Cfg.ListenAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c := cron.New()
	if a.Cfg.HistoryRetentionDays > 0 {
		retention := time.Duration(a.Cfg.HistoryRetentionDays) * 24 * time.Hour
		_, err := c.AddFunc("@daily", func() {
			n, err := a.History.PruneOlderThan(context.Background(), retention)
			if err != nil {
				a.Logger.Warn("history prune failed", "error", err)
				return
			}
			a.Logger.Info("pruned search history", "dropped", n)
		})
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
