package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "sheetbase/internal/db"
	"sheetbase/internal/domain"
)

func newTestHistory(t *testing.T) *SearchHistory {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSearchHistory(internaldb.OpenTestHistorySQLite(t), logger)
}

func TestSearchHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("record_and_read_back", func(t *testing.T) {
		h := newTestHistory(t)
		h.Record(domain.SearchRecord{Term: "widget", ResultCount: 3, SearchedAt: time.Now(), DurationMS: 1.5})
		h.Record(domain.SearchRecord{Term: "bolt", ResultCount: 0, SearchedAt: time.Now(), DurationMS: 0.4})

		recent, err := h.Recent(ctx, 10)

		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "bolt", recent[0].Term)
		assert.Equal(t, "widget", recent[1].Term)
		assert.Equal(t, int64(3), recent[1].ResultCount)
	})

	t.Run("recent_respects_limit", func(t *testing.T) {
		h := newTestHistory(t)
		for i := 0; i < 5; i++ {
			h.Record(domain.SearchRecord{Term: "q", SearchedAt: time.Now()})
		}

		recent, err := h.Recent(ctx, 3)

		require.NoError(t, err)
		assert.Len(t, recent, 3)
	})

	t.Run("prune_drops_only_old_entries", func(t *testing.T) {
		h := newTestHistory(t)
		h.Record(domain.SearchRecord{Term: "old", SearchedAt: time.Now().Add(-48 * time.Hour)})
		h.Record(domain.SearchRecord{Term: "new", SearchedAt: time.Now()})

		dropped, err := h.PruneOlderThan(ctx, 24*time.Hour)

		require.NoError(t, err)
		assert.Equal(t, int64(1), dropped)
		recent, err := h.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "new", recent[0].Term)
	})

	t.Run("record_failure_is_swallowed", func(t *testing.T) {
		h := newTestHistory(t)
		require.NoError(t, h.db.Close())
		// Must not panic or error; the recorder is fire-and-forget.
		h.Record(domain.SearchRecord{Term: "widget", SearchedAt: time.Now()})
	})
}
