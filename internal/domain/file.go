package domain

import "time"

// FileStatus is the lifecycle state of an imported file's registry entry.
type FileStatus string

const (
	// FileActive marks a file whose rows are live in the shared table.
	FileActive FileStatus = "active"
	// FileDeleted marks a soft-deleted file: rows physically removed, the
	// registry entry kept for audit.
	FileDeleted FileStatus = "deleted"
	// FileError marks a registration whose import or migration failed.
	FileError FileStatus = "error"
)

// ImportedFile is one entry in the file registry: a single ingested
// spreadsheet. FileID is assigned sequentially and never reused.
type ImportedFile struct {
	FileID         int64      `json:"file_id"`
	Filename       string     `json:"filename"`
	ImportDate     time.Time  `json:"import_date"`
	RowCount       int64      `json:"row_count"`
	IndexedColumns []string   `json:"indexed_columns"`
	FileSizeMB     float64    `json:"file_size_mb"`
	Status         FileStatus `json:"status"`
}

// ColumnInfo is one entry in the column registry: a (file, column) pair
// and whether the column participates in search for that file.
type ColumnInfo struct {
	Name    string `json:"name"`
	Indexed bool   `json:"indexed"`
}

// StoreStats aggregates totals across active files.
type StoreStats struct {
	TotalFiles      int64          `json:"total_files"`
	TotalRecords    int64          `json:"total_records"`
	TotalFileSizeMB float64        `json:"total_file_size_mb"`
	DatabaseSizeMB  float64        `json:"database_size_mb"`
	Files           []ImportedFile `json:"files"`
}

// FileDetail is the full picture of one imported file: registry entry,
// registered columns, and a small sample of its rows.
type FileDetail struct {
	File           ImportedFile `json:"file"`
	Columns        []ColumnInfo `json:"columns"`
	IndexedColumns []string     `json:"indexed_columns"`
	SampleRows     []SearchRow  `json:"sample_rows"`
}
