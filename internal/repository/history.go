// Package repository holds the write-side persistence that lives outside
// the analytical store, currently the search history sidecar.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"sheetbase/internal/domain"
)

// SearchHistory persists executed searches to the sidecar database.
// Recording is fire-and-forget: a failed insert is logged, never surfaced,
// so history can never break a search.
type SearchHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSearchHistory(db *sql.DB, logger *slog.Logger) *SearchHistory {
	return &SearchHistory{db: db, logger: logger}
}

var _ domain.SearchHistoryRecorder = (*SearchHistory)(nil)

// Record implements domain.SearchHistoryRecorder.
func (h *SearchHistory) Record(rec domain.SearchRecord) {
	_, err := h.db.Exec(`
		INSERT INTO search_history (search_term, result_count, search_date, execution_time_ms)
		VALUES (?, ?, ?, ?)`,
		rec.Term, rec.ResultCount, rec.SearchedAt.UTC().Format(time.RFC3339Nano), rec.DurationMS)
	if err != nil {
		h.logger.Warn("record search history", "term", rec.Term, "error", err)
	}
}

// Recent returns the newest n history entries, newest first.
func (h *SearchHistory) Recent(ctx context.Context, n int) ([]domain.SearchRecord, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT search_term, result_count, search_date, execution_time_ms
		FROM search_history
		ORDER BY search_id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()

	out := []domain.SearchRecord{}
	for rows.Next() {
		var rec domain.SearchRecord
		var at string
		if err := rows.Scan(&rec.Term, &rec.ResultCount, &at, &rec.DurationMS); err != nil {
			return nil, err
		}
		rec.SearchedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneOlderThan removes entries older than the retention window and
// returns how many were dropped.
func (h *SearchHistory) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := h.db.ExecContext(ctx, `DELETE FROM search_history WHERE search_date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune search history: %w", err)
	}
	return res.RowsAffected()
}
