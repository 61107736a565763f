package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"sheetbase/internal/domain"
	"sheetbase/internal/sheet"
)

// handleListFiles serves GET /v1/files.
func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.catalog.ListFiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"files": files, "count": len(files)})
}

// handleGetFile serves GET /v1/files/{fileID} with the registry entry,
// its columns, and a few sample rows.
func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := fileIDParam(r)
	if !ok {
		writeError(w, domain.ErrValidation("file id must be a positive integer"))
		return
	}

	file, err := h.catalog.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	cols, err := h.catalog.ColumnsForFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	sample, err := h.search.SampleRows(r.Context(), fileID, intQuery(r, "sample", 5))
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, envelope{"file": domain.FileDetail{
		File:           file,
		Columns:        cols,
		IndexedColumns: file.IndexedColumns,
		SampleRows:     sample,
	}})
}

// handleDeleteFile serves DELETE /v1/files/{fileID}.
func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := fileIDParam(r)
	if !ok {
		writeError(w, domain.ErrValidation("file id must be a positive integer"))
		return
	}
	if err := h.catalog.DeleteFile(r.Context(), fileID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"file_id": fileID, "status": string(domain.FileDeleted)})
}

// handleImport serves POST /v1/files: a multipart upload that is staged
// to disk and run through the import pipeline. The import outcome is
// reported in the body whether it succeeded or not.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := h.stageUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	opts := domain.ImportOptions{
		Method:      r.FormValue("method"),
		DisableFast: strings.EqualFold(r.FormValue("disable_fast"), "true"),
	}
	result := h.importer.ImportFile(r.Context(), path, csvForm(r, "index_columns"), opts)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handlePreview serves POST /v1/files/preview: same upload staging, but
// the file is only inspected, never imported.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := h.stageUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	preview, err := h.importer.Preview(path, intQuery(r, "rows", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"preview": preview})
}

// handleUpdateIndexes serves PUT /v1/files/{fileID}/indexes.
func (h *Handler) handleUpdateIndexes(w http.ResponseWriter, r *http.Request) {
	fileID, ok := fileIDParam(r)
	if !ok {
		writeError(w, domain.ErrValidation("file id must be a positive integer"))
		return
	}
	var body struct {
		Columns []string `json:"columns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if err := h.catalog.UpdateIndexedColumns(r.Context(), fileID, body.Columns); err != nil {
		writeError(w, err)
		return
	}
	file, err := h.catalog.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"file_id": fileID, "indexed_columns": file.IndexedColumns})
}

// handleColumns serves GET /v1/columns: the union of column names across
// active files, or one file's columns when file_id is given.
func (h *Handler) handleColumns(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("file_id"); raw != "" {
		ids, err := idsQuery(r, "file_id")
		if err != nil || len(ids) != 1 {
			writeError(w, domain.ErrValidation("file_id must be a positive integer"))
			return
		}
		cols, err := h.catalog.ColumnsForFile(r.Context(), ids[0])
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, envelope{"columns": cols, "count": len(cols)})
		return
	}

	cols, err := h.catalog.AllColumns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"columns": cols, "count": len(cols)})
}

// handleStats serves GET /v1/stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, envelope{"stats": stats})
}

// stageUpload copies the multipart "file" part to a temp file that keeps
// the original extension, enforcing the size cap and the extension
// whitelist. The caller must invoke cleanup.
func (h *Handler) stageUpload(w http.ResponseWriter, r *http.Request) (string, func(), error) {
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", noop, domain.ErrValidation("parse upload: %v", err)
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		return "", noop, domain.ErrValidation("missing file upload field %q", "file")
	}
	defer part.Close()

	filename := filepath.Base(header.Filename)
	if !sheet.SupportedExtension(filename) {
		return "", noop, domain.ErrValidation("unsupported file type %q", filepath.Ext(filename))
	}

	dir, err := os.MkdirTemp("", "sheetbase_upload_")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	// Keep the client's filename so imports are registered under it.
	path := filepath.Join(dir, filename)
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	if _, err := io.Copy(dst, part); err != nil {
		dst.Close()
		cleanup()
		return "", noop, domain.ErrValidation("read upload: %v", err)
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return path, cleanup, nil
}

// csvForm splits a comma-separated form value, dropping empties.
func csvForm(r *http.Request, name string) []string {
	raw := r.FormValue(name)
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
