package domain

import "time"

// SearchRow is one matching row from the shared table. SourceFile carries
// the owning file's name as a side channel, distinct from the row's own
// columns.
type SearchRow struct {
	SourceFileID int64             `json:"source_file_id"`
	SourceFile   string            `json:"_source_file"`
	Columns      map[string]string `json:"columns"`
}

// FileGroup is the per-file slice of a grouped search.
type FileGroup struct {
	FileID    int64       `json:"file_id"`
	Rows      []SearchRow `json:"results"`
	Count     int64       `json:"count"`
	TotalRows int64       `json:"total_rows"`
}

// GroupedResult maps filename to that file's matches. Files with zero
// matches are omitted.
type GroupedResult struct {
	Files      map[string]FileGroup `json:"files"`
	TotalCount int64                `json:"total_count"`
	FileCount  int                  `json:"file_count"`
}

// SearchRecord is one write-only history entry for an executed search.
type SearchRecord struct {
	Term        string    `json:"term"`
	ResultCount int64     `json:"result_count"`
	SearchedAt  time.Time `json:"searched_at"`
	DurationMS  float64   `json:"execution_time_ms"`
}

// SearchHistoryRecorder persists executed searches. Recording is
// best-effort: failures must never fail the search that produced them.
type SearchHistoryRecorder interface {
	Record(rec SearchRecord)
}
