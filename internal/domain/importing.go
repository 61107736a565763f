package domain

// Import method identifiers reported in ImportResult.Method.
const (
	MethodNativeBulk   = "native-bulk"   // store engine reads the file itself
	MethodAppenderBulk = "appender-bulk" // in-memory load + bulk appender
	MethodCSVBridge    = "csv-bridge"    // temp CSV re-export + engine read
	MethodStreaming    = "streaming"     // chunked row streaming fallback
	MethodAuto         = "auto"          // try the chain in priority order
)

// ImportResult is the uniform descriptor every import path produces.
// Callers cannot distinguish which strategy served an import except via
// Method.
type ImportResult struct {
	Success         bool    `json:"success"`
	Method          string  `json:"method,omitempty"`
	FileID          int64   `json:"file_id,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	RowsImported    int64   `json:"rows_imported"`
	DurationSeconds float64 `json:"duration_seconds"`
	FileSizeMB      float64 `json:"file_size_mb,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ImportProgress is reported after each committed chunk during a
// streaming import. The progress callback is the pipeline's only
// suspension point.
type ImportProgress struct {
	RowsProcessed int64   `json:"rows_processed"`
	TotalRows     int64   `json:"total_rows"`
	Percent       float64 `json:"percentage"`
}

// ProgressFunc receives streaming-import progress updates.
type ProgressFunc func(ImportProgress)

// ImportOptions tunes a single import run.
type ImportOptions struct {
	// Method pins a single strategy, or MethodAuto for the full chain.
	Method string
	// DisableFast skips the bulk strategies and goes straight to the
	// streaming fallback.
	DisableFast bool
	// Progress, when non-nil, is invoked after each streaming chunk.
	Progress ProgressFunc
}

// FilePreview describes a spreadsheet before it is imported.
type FilePreview struct {
	Filename         string              `json:"filename"`
	FileSizeMB       float64             `json:"file_size_mb"`
	Headers          []string            `json:"headers"`
	SuggestedIndexes []string            `json:"suggested_indexes"`
	Rows             []map[string]string `json:"preview_data"`
	TotalRows        int64               `json:"total_rows"`
}
