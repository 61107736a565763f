package api

import (
	"net/http"
	"strings"

	"sheetbase/internal/domain"
	"sheetbase/internal/search"
)

// handleSearch serves GET /v1/search. With grouped=true the matches are
// grouped per file; otherwise a flat page with total count is returned.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	fileIDs, err := idsQuery(r, "file_ids")
	if err != nil {
		writeError(w, domain.ErrValidation("file_ids must be a comma-separated list of positive integers"))
		return
	}
	opts := search.Options{
		FileIDs: fileIDs,
		Columns: csvQuery(r, "columns"),
		Limit:   intQuery(r, "limit", 0),
		Offset:  intQuery(r, "offset", 0),
	}

	if strings.EqualFold(r.URL.Query().Get("grouped"), "true") {
		grouped, err := h.search.SearchGrouped(r.Context(), term, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, envelope{
			"files":       grouped.Files,
			"total_count": grouped.TotalCount,
			"file_count":  grouped.FileCount,
		})
		return
	}

	res, err := h.search.Search(r.Context(), term, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{
		"results":          res.Rows,
		"total_count":      res.TotalCount,
		"searched_columns": res.Columns,
		"count":            len(res.Rows),
	})
}

// handleExport serves GET /v1/export, streaming matches as a CSV or JSON
// attachment.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = search.FormatCSV
	}
	fileIDs, err := idsQuery(r, "file_ids")
	if err != nil {
		writeError(w, domain.ErrValidation("file_ids must be a comma-separated list of positive integers"))
		return
	}
	opts := search.Options{
		FileIDs: fileIDs,
		Columns: csvQuery(r, "columns"),
		Limit:   intQuery(r, "limit", 0),
	}

	switch strings.ToLower(format) {
	case search.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="search_results.csv"`)
	case search.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="search_results.json"`)
	default:
		writeError(w, domain.ErrValidation("unsupported export format %q", format))
		return
	}

	if _, err := h.search.Export(r.Context(), w, format, term, opts); err != nil {
		// Headers may already be out; log and abort the body.
		h.logger.Error("export failed", "format", format, "error", err)
	}
}

// handleHistory serves GET /v1/history.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	recent, err := h.history.Recent(r.Context(), intQuery(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"history": recent, "count": len(recent)})
}
