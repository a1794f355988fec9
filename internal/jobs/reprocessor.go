package jobs

import (
	"context"
	"log/slog"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/github"
	"github.com/sevigo/regression-warden/internal/queue"
	"github.com/sevigo/regression-warden/internal/storage"
)

// ReplayStatus describes how one dead-lettered message was handled.
type ReplayStatus string

const (
	ReplayReplayed ReplayStatus = "replayed"
	ReplayFailed   ReplayStatus = "failed"
	ReplayDryRun   ReplayStatus = "dry_run"
)

// ReplayReport is the per-message result of a reprocessing run.
type ReplayReport struct {
	PRID         int          `json:"pr_id"`
	Revision     string       `json:"revision,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Status       ReplayStatus `json:"status"`
	NewMessageID string       `json:"new_message_id,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ReplaySummary aggregates one reprocessing run.
type ReplaySummary struct {
	DryRun   bool           `json:"dry_run"`
	Total    int            `json:"total"`
	Replayed int            `json:"replayed"`
	Failed   int            `json:"failed"`
	Reports  []ReplayReport `json:"reports"`
}

// Reprocessor drains the dead-letter table back onto the live queue.
//
// Replaying a message clears its idempotency marker first, otherwise the
// job would short-circuit on the leftover in-progress claim from the
// failed run. A message is removed from the dead-letter table only after
// it has been successfully republished.
type Reprocessor struct {
	queue   queue.Queue
	markers storage.IdempotencyStore
	host    github.Client
	logger  *slog.Logger
}

// NewReprocessor creates a dead-letter reprocessor.
func NewReprocessor(q queue.Queue, markers storage.IdempotencyStore, host github.Client, logger *slog.Logger) *Reprocessor {
	return &Reprocessor{queue: q, markers: markers, host: host, logger: logger}
}

// Reprocess replays up to max dead-lettered messages. With dryRun set it
// only reports what would be replayed and changes nothing.
//
// The credential check runs up front: most dead letters are auth
// failures, and replaying a whole batch against a still-broken token
// would only round-trip every message back into the table.
func (r *Reprocessor) Reprocess(ctx context.Context, max int, dryRun bool) (*ReplaySummary, error) {
	if err := r.host.ValidateCredential(ctx); err != nil {
		r.logger.Error("credential check failed, aborting reprocessing", "error", err)
		return nil, err
	}

	letters, err := r.queue.PullDeadLetters(ctx, max)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, err)
	}

	summary := &ReplaySummary{DryRun: dryRun, Total: len(letters)}
	for _, letter := range letters {
		report := r.replayOne(ctx, letter, dryRun)
		summary.Reports = append(summary.Reports, report)
		switch report.Status {
		case ReplayReplayed:
			summary.Replayed++
		case ReplayFailed:
			summary.Failed++
		}
	}

	r.logger.Info("dead-letter reprocessing finished",
		"dry_run", dryRun, "total", summary.Total, "replayed", summary.Replayed, "failed", summary.Failed)
	return summary, nil
}

// replayOne handles a single dead letter. A failure here never aborts the
// batch; the message simply stays in the table for the next run.
func (r *Reprocessor) replayOne(ctx context.Context, letter queue.DeadLetter, dryRun bool) ReplayReport {
	report := ReplayReport{
		PRID:     letter.Message.PRID,
		Revision: letter.Message.Revision,
		Reason:   letter.Reason,
	}
	log := r.logger.With("pr", letter.Message.PRID, "dead_letter_id", letter.Message.ID)

	if dryRun {
		report.Status = ReplayDryRun
		return report
	}

	if letter.Message.Revision != "" {
		if err := r.markers.Delete(ctx, letter.Message.PRID, letter.Message.Revision); err != nil {
			log.Error("failed to clear idempotency marker", "error", err)
			report.Status = ReplayFailed
			report.Error = err.Error()
			return report
		}
	}

	req := core.ReviewRequest{
		PRID:     letter.Message.PRID,
		Revision: letter.Message.Revision,
		Source:   core.SourceDLQReplay,
	}
	id, err := r.queue.Publish(ctx, req)
	if err != nil {
		log.Error("failed to republish dead letter", "error", err)
		report.Status = ReplayFailed
		report.Error = err.Error()
		return report
	}

	if err := r.queue.AckDeadLetter(ctx, letter.Message.ID); err != nil {
		// Republished but not removed: the next run will replay it
		// again, and the idempotency layer will absorb the duplicate.
		log.Error("failed to remove replayed dead letter", "error", err)
	}

	log.Info("dead letter replayed", "new_message_id", id)
	report.Status = ReplayReplayed
	report.NewMessageID = id
	return report
}
