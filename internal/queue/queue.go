// Package queue implements the review trigger queue on Postgres with
// at-least-once delivery. Ready messages are leased with FOR UPDATE SKIP
// LOCKED so concurrent workers never pull the same message twice within a
// lease; an expired lease makes the message deliverable again. Messages
// whose delivery attempts exceed the configured bound move to the
// dead-letter table for operator-driven replay.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/regression-warden/internal/core"
)

// DeadLetter is one failed message parked on the failure queue.
type DeadLetter struct {
	Message  core.QueueMessage
	Reason   string
	FailedAt time.Time
}

// Queue is the broker contract the dispatch layer and the reprocessor
// depend on.
type Queue interface {
	// Publish enqueues a message and returns its message ID.
	Publish(ctx context.Context, req core.ReviewRequest) (string, error)
	// Pull leases the next ready message, or returns nil when the queue
	// is empty. Pulling counts as a delivery attempt.
	Pull(ctx context.Context) (*core.QueueMessage, error)
	// Ack permanently removes a delivered message.
	Ack(ctx context.Context, id string) error
	// Nack releases the lease for redelivery; once the attempt bound is
	// reached the message moves to the dead-letter table instead.
	Nack(ctx context.Context, id, reason string) error
	// DeadLetter moves a message to the failure queue immediately,
	// bypassing remaining delivery attempts.
	DeadLetter(ctx context.Context, id, reason string) error
	// PullDeadLetters reads up to max dead letters without removing them.
	PullDeadLetters(ctx context.Context, max int) ([]DeadLetter, error)
	// AckDeadLetter removes a replayed message from the failure queue.
	AckDeadLetter(ctx context.Context, id string) error
}

type pgQueue struct {
	db          *sqlx.DB
	maxAttempts int
	lease       time.Duration
}

// NewQueue creates a Postgres-backed Queue. maxAttempts bounds broker-level
// redelivery; lease should exceed the worst-case job duration so a live
// worker never loses its message mid-run.
func NewQueue(db *sqlx.DB, maxAttempts int, lease time.Duration) Queue {
	return &pgQueue{db: db, maxAttempts: maxAttempts, lease: lease}
}

func (q *pgQueue) Publish(ctx context.Context, req core.ReviewRequest) (string, error) {
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO queue_messages (id, pr_id, revision, source, received_at)
		 VALUES ($1, $2, $3, $4, now())`,
		id, req.PRID, req.Revision, req.Source)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}
	return id, nil
}

func (q *pgQueue) Pull(ctx context.Context) (*core.QueueMessage, error) {
	row := q.db.QueryRowContext(ctx, fmt.Sprintf(
		`UPDATE queue_messages
		 SET leased_until = now() + interval '%d seconds', attempts = attempts + 1
		 WHERE id = (
		   SELECT id FROM queue_messages
		   WHERE leased_until IS NULL OR leased_until < now()
		   ORDER BY received_at
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING id, pr_id, revision, source, received_at, attempts`,
		int(q.lease.Seconds())))

	var m core.QueueMessage
	if err := row.Scan(&m.ID, &m.PRID, &m.Revision, &m.Source, &m.ReceivedAt, &m.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pull message: %w", err)
	}
	return &m, nil
}

func (q *pgQueue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (q *pgQueue) Nack(ctx context.Context, id, reason string) error {
	var attempts int
	err := q.db.QueryRowContext(ctx,
		`SELECT attempts FROM queue_messages WHERE id = $1`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to read message attempts: %w", err)
	}

	if attempts >= q.maxAttempts {
		return q.DeadLetter(ctx, id, fmt.Sprintf("delivery attempts exhausted (%d): %s", attempts, reason))
	}

	_, err = q.db.ExecContext(ctx,
		`UPDATE queue_messages SET leased_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release message lease: %w", err)
	}
	return nil
}

func (q *pgQueue) DeadLetter(ctx context.Context, id, reason string) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin dead-letter tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO dead_letters (id, pr_id, revision, source, received_at, attempts, reason, failed_at)
		 SELECT id, pr_id, revision, source, received_at, attempts, $2, now()
		 FROM queue_messages WHERE id = $1`,
		id, reason)
	if err != nil {
		return fmt.Errorf("failed to move message to dead letters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove dead-lettered message: %w", err)
	}
	return tx.Commit()
}

func (q *pgQueue) PullDeadLetters(ctx context.Context, max int) ([]DeadLetter, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, pr_id, revision, source, received_at, attempts, reason, failed_at
		 FROM dead_letters ORDER BY failed_at LIMIT $1`, max)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.Message.ID, &d.Message.PRID, &d.Message.Revision,
			&d.Message.Source, &d.Message.ReceivedAt, &d.Message.Attempts,
			&d.Reason, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

func (q *pgQueue) AckDeadLetter(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to ack dead letter: %w", err)
	}
	return nil
}
