// Package api provides the HTTP handlers for the spreadsheet store's
// REST API.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sheetbase/internal/catalog"
	"sheetbase/internal/importer"
	"sheetbase/internal/repository"
	"sheetbase/internal/search"
)

// Handler carries the services the HTTP surface is built on.
type Handler struct {
	importer    *importer.Importer
	search      *search.Service
	catalog     *catalog.Store
	history     *repository.SearchHistory
	logger      *slog.Logger
	maxUploadMB int64
}

// NewHandler creates a Handler with all required service dependencies.
func NewHandler(
	imp *importer.Importer,
	svc *search.Service,
	cat *catalog.Store,
	history *repository.SearchHistory,
	logger *slog.Logger,
	maxUploadMB int64,
) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 100
	}
	return &Handler{
		importer:    imp,
		search:      svc,
		catalog:     cat,
		history:     history,
		logger:      logger,
		maxUploadMB: maxUploadMB,
	}
}

// Routes mounts every versioned endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/search", h.handleSearch)
	r.Get("/export", h.handleExport)
	r.Get("/columns", h.handleColumns)
	r.Get("/stats", h.handleStats)
	r.Get("/history", h.handleHistory)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.handleListFiles)
		r.Post("/", h.handleImport)
		r.Post("/import", h.handleImport)
		r.Post("/preview", h.handlePreview)
		r.Get("/{fileID}", h.handleGetFile)
		r.Delete("/{fileID}", h.handleDeleteFile)
		r.Put("/{fileID}/indexes", h.handleUpdateIndexes)
	})
}

// Healthz reports liveness; mounted outside the versioned tree.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, envelope{"status": "ok"})
}

// --- param helpers ---

// fileIDParam parses the {fileID} URL parameter.
func fileIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	return id, err == nil && id > 0
}

// intQuery parses an optional integer query parameter, returning def when
// absent or unparseable.
func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// csvQuery splits a comma-separated query parameter, dropping empties.
func csvQuery(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// idsQuery parses a comma-separated list of file IDs.
func idsQuery(r *http.Request, name string) ([]int64, error) {
	var out []int64
	for _, part := range csvQuery(r, name) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, strconv.ErrSyntax
		}
		out = append(out, id)
	}
	return out, nil
}
