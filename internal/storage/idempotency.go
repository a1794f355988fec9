package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/regression-warden/internal/core"
)

// IdempotencyStore coordinates stateless workers through durable markers.
// CreateIfAbsent is the sole mutual-exclusion mechanism in the system:
// exactly one of any number of racing workers wins the claim for an
// identity key, the rest observe the existing marker.
type IdempotencyStore interface {
	// CreateIfAbsent atomically claims the identity key. When the claim
	// fails because a live marker exists, the marker is returned so the
	// caller can short-circuit. A stale in-progress marker (older than
	// the staleness bound) is reclaimed instead of blocking forever.
	CreateIfAbsent(ctx context.Context, prID int, revision string) (claimed bool, existing *core.IdempotencyMarker, err error)
	MarkDone(ctx context.Context, prID int, revision string) error
	Delete(ctx context.Context, prID int, revision string) error
	Get(ctx context.Context, prID int, revision string) (*core.IdempotencyMarker, error)
}

type pgIdempotencyStore struct {
	db        *sqlx.DB
	markerTTL time.Duration
}

// NewIdempotencyStore creates a Postgres-backed IdempotencyStore. markerTTL
// is the staleness bound after which an in-progress marker counts as
// abandoned by a dead worker.
func NewIdempotencyStore(db *sqlx.DB, markerTTL time.Duration) IdempotencyStore {
	return &pgIdempotencyStore{db: db, markerTTL: markerTTL}
}

func (s *pgIdempotencyStore) CreateIfAbsent(ctx context.Context, prID int, revision string) (bool, *core.IdempotencyMarker, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_markers (pr_id, revision, state, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (pr_id, revision) DO NOTHING`,
		prID, revision, core.MarkerInProgress)
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim idempotency marker: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return true, nil, nil
	}

	// A marker exists. Reclaim it only if it is an abandoned in-progress
	// claim older than the staleness bound.
	res, err = s.db.ExecContext(ctx,
		`UPDATE idempotency_markers
		 SET created_at = now()
		 WHERE pr_id = $1 AND revision = $2 AND state = $3
		   AND created_at < now() - $4::interval`,
		prID, revision, core.MarkerInProgress, fmt.Sprintf("%f seconds", s.markerTTL.Seconds()))
	if err != nil {
		return false, nil, fmt.Errorf("failed to reclaim stale marker: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return true, nil, nil
	}

	existing, err := s.Get(ctx, prID, revision)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *pgIdempotencyStore) MarkDone(ctx context.Context, prID int, revision string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE idempotency_markers SET state = $3 WHERE pr_id = $1 AND revision = $2`,
		prID, revision, core.MarkerDone)
	if err != nil {
		return fmt.Errorf("failed to mark idempotency marker done: %w", err)
	}
	return nil
}

func (s *pgIdempotencyStore) Delete(ctx context.Context, prID int, revision string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_markers WHERE pr_id = $1 AND revision = $2`,
		prID, revision)
	if err != nil {
		return fmt.Errorf("failed to delete idempotency marker: %w", err)
	}
	return nil
}

func (s *pgIdempotencyStore) Get(ctx context.Context, prID int, revision string) (*core.IdempotencyMarker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pr_id, revision, state, created_at
		 FROM idempotency_markers WHERE pr_id = $1 AND revision = $2`,
		prID, revision)

	var m core.IdempotencyMarker
	if err := row.Scan(&m.PRID, &m.Revision, &m.State, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read idempotency marker: %w", err)
	}
	return &m, nil
}
