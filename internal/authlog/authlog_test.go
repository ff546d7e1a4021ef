package authlog

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T, path string) *Log {
	t.Helper()

	log, err := Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	return log
}

func TestLog_RecordAndRecent(t *testing.T) {
	log := openTestLog(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	log.Record(ctx, "sign_in", "alice")
	log.Record(ctx, "renewed", "")
	log.Record(ctx, "sign_out", "")

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "sign_out", entries[0].Event)
	assert.Equal(t, "renewed", entries[1].Event)
	assert.Equal(t, "sign_in", entries[2].Event)
	assert.Equal(t, "alice", entries[2].Detail)
	assert.False(t, entries[0].At.IsZero())
}

func TestLog_RecentHonorsLimit(t *testing.T) {
	log := openTestLog(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	for range 5 {
		log.Record(ctx, "renewed", "")
	}

	entries, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLog_RecentEmpty(t *testing.T) {
	log := openTestLog(t, filepath.Join(t.TempDir(), "history.db"))

	entries, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	first.Record(ctx, "sign_in", "alice")
	require.NoError(t, first.Close())

	// Reopening re-runs migrations idempotently and sees the old rows.
	second := openTestLog(t, path)

	entries, err := second.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sign_in", entries[0].Event)
}
