package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetbase/internal/catalog"
	internaldb "sheetbase/internal/db"
	"sheetbase/internal/importer"
	"sheetbase/internal/repository"
	"sheetbase/internal/schema"
	"sheetbase/internal/search"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dbh := internaldb.OpenTestDuckDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cat := catalog.NewStore(dbh, "", logger)
	require.NoError(t, cat.EnsureBasicSchema(context.Background()))
	evolver := schema.New(dbh, logger)

	history := repository.NewSearchHistory(internaldb.OpenTestHistorySQLite(t), logger)
	imp := importer.New(dbh, cat, evolver, logger, 50000, 100000)
	svc := search.New(dbh, cat, evolver, history, logger, []string{"Description"}, 100, 1000)

	h := NewHandler(imp, svc, cat, history, logger, 10)
	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Route("/v1", h.Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// uploadCSV posts content as a multipart CSV upload to path with extra
// form fields.
func uploadCSV(t *testing.T, srv *httptest.Server, path, filename, content string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func importParts(t *testing.T, srv *httptest.Server) int64 {
	t.Helper()
	resp := uploadCSV(t, srv, "/v1/files", "parts.csv",
		"Part Number,Description\nA-1,Steel Widget\nA-2,Brass Fitting\n",
		map[string]string{"index_columns": "Part Number"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["success"])
	return int64(body["file_id"].(float64))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")

	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestImportEndpoint(t *testing.T) {
	t.Run("happy_path", func(t *testing.T) {
		srv := newTestServer(t)

		resp := uploadCSV(t, srv, "/v1/files", "parts.csv",
			"Part Number,Description\nA-1,widget\n", nil)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(1), body["rows_imported"])
		assert.NotEmpty(t, body["method"])
	})

	t.Run("rejects_unsupported_extension", func(t *testing.T) {
		srv := newTestServer(t)

		resp := uploadCSV(t, srv, "/v1/files", "notes.txt", "hello", nil)

		body := decodeBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("missing_file_field", func(t *testing.T) {
		srv := newTestServer(t)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("index_columns", "x"))
		require.NoError(t, mw.Close())
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/files", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := srv.Client().Do(req)

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestPreviewEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadCSV(t, srv, "/v1/files/preview", "parts.csv",
		"Part Number,Description\nA-1,widget\nA-2,bolt\nA-3,nut\n", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["success"])
	preview := body["preview"].(map[string]interface{})
	assert.Equal(t, float64(3), preview["total_rows"])
	assert.Contains(t, preview["suggested_indexes"], "Part_Number")

	// Preview never registers anything.
	listResp, err := srv.Client().Get(srv.URL + "/v1/files")
	require.NoError(t, err)
	listBody := decodeBody(t, listResp)
	assert.Equal(t, float64(0), listBody["count"])
}

func TestFilesEndpoints(t *testing.T) {
	t.Run("list_and_get", func(t *testing.T) {
		srv := newTestServer(t)
		fileID := importParts(t, srv)

		resp, err := srv.Client().Get(srv.URL + "/v1/files")
		require.NoError(t, err)
		body := decodeBody(t, resp)
		assert.Equal(t, float64(1), body["count"])

		resp, err = srv.Client().Get(fmt.Sprintf("%s/v1/files/%d", srv.URL, fileID))
		require.NoError(t, err)
		body = decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		detail := body["file"].(map[string]interface{})
		file := detail["file"].(map[string]interface{})
		assert.Equal(t, "parts.csv", file["filename"])
		assert.Len(t, detail["sample_rows"], 2)
	})

	t.Run("get_missing_is_404", func(t *testing.T) {
		srv := newTestServer(t)

		resp, err := srv.Client().Get(srv.URL + "/v1/files/99")

		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("delete_then_delete_again", func(t *testing.T) {
		srv := newTestServer(t)
		fileID := importParts(t, srv)

		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/files/%d", srv.URL, fileID), nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp, err = srv.Client().Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("update_indexes", func(t *testing.T) {
		srv := newTestServer(t)
		fileID := importParts(t, srv)

		payload := strings.NewReader(`{"columns": ["Description"]}`)
		req, err := http.NewRequest(http.MethodPut,
			fmt.Sprintf("%s/v1/files/%d/indexes", srv.URL, fileID), payload)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := srv.Client().Do(req)

		require.NoError(t, err)
		body := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []interface{}{"Description"}, body["indexed_columns"])
	})
}

func TestSearchEndpoint(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		srv := newTestServer(t)
		importParts(t, srv)

		resp, err := srv.Client().Get(srv.URL + "/v1/search?q=A-1")

		require.NoError(t, err)
		body := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["total_count"])
		results := body["results"].([]interface{})
		require.Len(t, results, 1)
		row := results[0].(map[string]interface{})
		assert.Equal(t, "parts.csv", row["_source_file"])
	})

	t.Run("grouped", func(t *testing.T) {
		srv := newTestServer(t)
		importParts(t, srv)

		resp, err := srv.Client().Get(srv.URL + "/v1/search?q=A-&grouped=true")

		require.NoError(t, err)
		body := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(2), body["total_count"])
		assert.Equal(t, float64(1), body["file_count"])
		files := body["files"].(map[string]interface{})
		assert.Contains(t, files, "parts.csv")
	})

	t.Run("blank_term_returns_everything", func(t *testing.T) {
		srv := newTestServer(t)
		importParts(t, srv)

		resp, err := srv.Client().Get(srv.URL + "/v1/search?q=")

		require.NoError(t, err)
		body := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(2), body["total_count"])
	})

	t.Run("bad_file_ids_is_400", func(t *testing.T) {
		srv := newTestServer(t)

		resp, err := srv.Client().Get(srv.URL + "/v1/search?q=x&file_ids=abc")

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t)
	importParts(t, srv)

	resp, err := srv.Client().Get(srv.URL + "/v1/export?q=A-&format=csv")

	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 3) // header + two rows
}

func TestStatsColumnsHistory(t *testing.T) {
	srv := newTestServer(t)
	importParts(t, srv)

	resp, err := srv.Client().Get(srv.URL + "/v1/search?q=widget")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = srv.Client().Get(srv.URL + "/v1/stats")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_files"])
	assert.Equal(t, float64(2), stats["total_records"])

	resp, err = srv.Client().Get(srv.URL + "/v1/columns")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Contains(t, body["columns"], "Part_Number")
	assert.Contains(t, body["columns"], "Description")

	resp, err = srv.Client().Get(srv.URL + "/v1/history")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
}
