// Package storage provides the durable stores the review pipeline writes
// to: the date-partitioned review documents, the idempotency markers, and
// the outcome records.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ReviewStore persists review markdown documents. Written documents are
// immutable; a new revision always produces a new path.
type ReviewStore interface {
	SaveReview(ctx context.Context, prID int, generatedAt time.Time, markdown string) (string, error)
}

// ReviewPath builds the canonical storage path for one review:
// reviews/<yyyy>/<mm>/<dd>/pr-<pr_id>-<timestamp>-review.md, partitioned
// by UTC date.
func ReviewPath(prID int, generatedAt time.Time) string {
	utc := generatedAt.UTC()
	return fmt.Sprintf("reviews/%s/pr-%d-%s-review.md",
		utc.Format("2006/01/02"), prID, utc.Format("150405"))
}

type fsReviewStore struct {
	root   string
	logger *slog.Logger
}

// NewFSReviewStore stores review documents on the local filesystem under
// root, following the date-partitioned path convention.
func NewFSReviewStore(root string, logger *slog.Logger) ReviewStore {
	return &fsReviewStore{root: root, logger: logger}
}

func (s *fsReviewStore) SaveReview(_ context.Context, prID int, generatedAt time.Time, markdown string) (string, error) {
	relPath := ReviewPath(prID, generatedAt)
	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create review directory: %w", err)
	}

	// O_EXCL keeps stored reviews immutable: a duplicate write for the
	// same second is an error, never an overwrite.
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create review file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(markdown); err != nil {
		return "", fmt.Errorf("failed to write review: %w", err)
	}

	s.logger.Info("review stored", "path", relPath, "bytes", len(markdown))
	return relPath, nil
}
