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

// OutcomeStore records the durable result of every review job, including
// recorded failures. Outcomes are append-only.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, outcome *core.JobOutcome) error
	GetLatestOutcome(ctx context.Context, prID int, revision string) (*core.JobOutcome, error)
}

type pgOutcomeStore struct {
	db *sqlx.DB
}

// NewOutcomeStore creates a Postgres-backed OutcomeStore.
func NewOutcomeStore(db *sqlx.DB) OutcomeStore {
	return &pgOutcomeStore{db: db}
}

func (s *pgOutcomeStore) SaveOutcome(ctx context.Context, o *core.JobOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_outcomes
		 (pr_id, revision, source, title, author, files_changed, max_severity,
		  action_taken, commented, storage_path, status, failure_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.Request.PRID, o.Request.Revision, o.Request.Source, o.Title, o.Author,
		o.FilesChanged, o.Result.Severity.String(), o.ActionTaken, o.Commented,
		o.StoragePath, o.Status, o.FailureReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save job outcome: %w", err)
	}
	return nil
}

func (s *pgOutcomeStore) GetLatestOutcome(ctx context.Context, prID int, revision string) (*core.JobOutcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pr_id, revision, source, title, author, files_changed, max_severity,
		        action_taken, commented, storage_path, status, failure_reason
		 FROM review_outcomes
		 WHERE pr_id = $1 AND revision = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		prID, revision)

	var (
		o        core.JobOutcome
		severity string
	)
	err := row.Scan(&o.Request.PRID, &o.Request.Revision, &o.Request.Source,
		&o.Title, &o.Author, &o.FilesChanged, &severity, &o.ActionTaken,
		&o.Commented, &o.StoragePath, &o.Status, &o.FailureReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job outcome: %w", err)
	}
	o.Result.Severity = core.ParseSeverity(severity)
	return &o, nil
}
