package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewPath(t *testing.T) {
	at := time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "reviews/2026/08/29/pr-1234-143005-review.md", ReviewPath(1234, at))

	// Path partitioning follows UTC, not the local zone.
	loc := time.FixedZone("UTC+5", 5*3600)
	late := time.Date(2026, 8, 30, 2, 0, 0, 0, loc)
	assert.Equal(t, "reviews/2026/08/29/pr-7-210000-review.md", ReviewPath(7, late))
}

func TestFSReviewStoreSaveReview(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := NewFSReviewStore(dir, logger)

	at := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	path, err := store.SaveReview(context.Background(), 42, at, "# Review\n")
	require.NoError(t, err)
	assert.Equal(t, "reviews/2026/08/29/pr-42-090000-review.md", path)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Equal(t, "# Review\n", string(data))

	// Stored documents are immutable: a second write to the same path fails.
	_, err = store.SaveReview(context.Background(), 42, at, "overwrite attempt")
	assert.Error(t, err)
}
