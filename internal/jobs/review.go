// Package jobs implements the review pipeline: the idempotent job state
// machine, the queue consumer that feeds it, and the dead-letter
// reprocessor that recovers failed triggers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/regression-warden/internal/config"
	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/github"
	"github.com/sevigo/regression-warden/internal/llm"
	"github.com/sevigo/regression-warden/internal/review"
	"github.com/sevigo/regression-warden/internal/storage"
)

// ErrInProgress signals that another worker currently holds the
// idempotency claim for this identity key. Callers treat it as duplicate
// suppression, not as a failure.
var ErrInProgress = errors.New("a review for this revision is already in progress")

// ReviewJob turns one ReviewRequest into exactly one durable JobOutcome.
//
// The pipeline is strictly sequential per revision:
// metadata fetch -> idempotency claim -> changed-file fetch -> generation
// -> classification -> action -> persistence. A terminal failure before
// the claim leaves no marker behind, so replaying a permanently invalid
// PR does not loop.
type ReviewJob struct {
	cfg      *config.Config
	host     github.Client
	reviewer llm.Reviewer
	reviews  storage.ReviewStore
	outcomes storage.OutcomeStore
	markers  storage.IdempotencyStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewReviewJob creates the job with all its collaborators.
func NewReviewJob(
	cfg *config.Config,
	host github.Client,
	reviewer llm.Reviewer,
	reviews storage.ReviewStore,
	outcomes storage.OutcomeStore,
	markers storage.IdempotencyStore,
	logger *slog.Logger,
) *ReviewJob {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if host == nil || reviewer == nil || reviews == nil || outcomes == nil || markers == nil {
		panic("review job collaborators cannot be nil")
	}
	return &ReviewJob{
		cfg:      cfg,
		host:     host,
		reviewer: reviewer,
		reviews:  reviews,
		outcomes: outcomes,
		markers:  markers,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes the review pipeline for one request.
func (j *ReviewJob) Run(ctx context.Context, req core.ReviewRequest) (*core.JobOutcome, error) {
	if req.PRID <= 0 {
		return nil, core.Errorf(core.KindInvalid, "pull request id must be positive, got %d", req.PRID)
	}
	if req.Source == "" {
		req.Source = core.SourceManual
	}

	ctx, cancel := context.WithTimeout(ctx, j.cfg.Jobs.JobTimeout)
	defer cancel()

	log := j.logger.With("pr", req.PRID, "source", req.Source)
	log.Info("starting review job")

	// Metadata fetch happens before the idempotency claim: manual
	// triggers carry no revision, and a permanently invalid PR must not
	// leave a marker behind.
	meta, err := j.host.FetchPRMetadata(ctx, req.PRID)
	if err != nil {
		log.Error("failed to fetch PR metadata", "kind", core.KindOf(err), "error", err)
		return nil, err
	}

	if req.Revision == "" {
		req.Revision = meta.HeadSHA
	}
	if req.Revision == "" {
		return nil, core.Errorf(core.KindInvalid, "PR %d has no head revision; it may be a draft or empty", req.PRID)
	}
	log = log.With("revision", shortRevision(req.Revision))

	claimed, existing, err := j.markers.CreateIfAbsent(ctx, req.PRID, req.Revision)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, err)
	}
	if !claimed {
		return j.shortCircuit(ctx, req, existing, log)
	}

	files, err := j.host.FetchChangedFiles(ctx, req.PRID, meta)
	if err != nil {
		// The in-progress marker is deliberately left in place; it
		// becomes reclaimable after the staleness bound.
		log.Error("failed to fetch changed files", "kind", core.KindOf(err), "error", err)
		return nil, err
	}

	repoConfig := j.loadRepoConfig(ctx, meta.HeadSHA, log)
	files = filterFiles(files, repoConfig)

	if len(files) == 0 {
		log.Info("no reviewable file changes, completing without review")
		return j.finishEmpty(ctx, req, meta, log)
	}
	log.Info("fetched changed files", "count", len(files))

	prompt := llm.BuildPrompt(req.PRID, meta, files, repoConfig)
	markdown, err := j.reviewer.GenerateReview(ctx, prompt)
	if err != nil {
		// Application-level retries are exhausted (or the request was
		// rejected as content). Record the failure durably instead of
		// escalating; a model hiccup is not fixable by redelivery.
		log.Error("review generation failed, recording failed outcome", "kind", core.KindOf(err), "error", err)
		return j.finishFailed(ctx, req, meta, len(files), err, log)
	}

	severity := review.Classify(markdown)
	plan := review.PolicyFor(severity)
	log.Info("review classified", "severity", severity, "comment", plan.Comment, "reject", plan.Reject)

	generatedAt := j.now()
	storagePath, err := j.reviews.SaveReview(ctx, req.PRID, generatedAt, markdown)
	if err != nil {
		log.Error("failed to store review", "error", err)
		return nil, core.WrapError(core.KindInternal, err)
	}

	outcome := &core.JobOutcome{
		Request:      req,
		Title:        meta.Title,
		Author:       meta.Author,
		FilesChanged: len(files),
		Result: core.ReviewResult{
			Markdown:    markdown,
			Severity:    severity,
			GeneratedAt: generatedAt,
		},
		ActionTaken: core.ActionNone,
		StoragePath: storagePath,
		Status:      core.StatusCompleted,
	}

	j.act(ctx, outcome, plan, meta, log)

	if err := j.persist(ctx, outcome); err != nil {
		log.Error("failed to persist outcome", "error", err)
		return nil, core.WrapError(core.KindInternal, err)
	}

	log.Info("review job completed", "severity", severity, "action", outcome.ActionTaken, "path", storagePath)
	return outcome, nil
}

// act applies the severity-gated side effects. Comment and vote failures
// are logged but never abort the job; a review that could not be posted is
// still worth keeping.
func (j *ReviewJob) act(ctx context.Context, outcome *core.JobOutcome, plan review.ActionPlan, meta *core.PRMetadata, log *slog.Logger) {
	if plan.Comment {
		body := review.FormatComment(meta.Author, outcome.StoragePath, outcome.Result.Severity, outcome.Result.Markdown)
		if err := j.host.PostComment(ctx, outcome.Request.PRID, body); err != nil {
			log.Error("failed to post review comment", "error", err)
		} else {
			outcome.Commented = true
			outcome.ActionTaken = core.ActionCommented
		}
	}

	if plan.Reject {
		if err := j.host.SetVote(ctx, outcome.Request.PRID, true); err != nil {
			log.Error("failed to reject PR", "error", err)
		} else {
			outcome.ActionTaken = core.ActionRejected
		}
	}
}

// persist writes the outcome record and marks the idempotency marker done.
func (j *ReviewJob) persist(ctx context.Context, outcome *core.JobOutcome) error {
	if err := j.outcomes.SaveOutcome(ctx, outcome); err != nil {
		return err
	}
	return j.markers.MarkDone(ctx, outcome.Request.PRID, outcome.Request.Revision)
}

// shortCircuit handles losing the idempotency claim: a done marker means
// the work already happened and its recorded outcome is returned; a live
// in-progress marker means another worker is on it right now.
func (j *ReviewJob) shortCircuit(ctx context.Context, req core.ReviewRequest, existing *core.IdempotencyMarker, log *slog.Logger) (*core.JobOutcome, error) {
	if existing != nil && existing.State == core.MarkerDone {
		log.Info("revision already reviewed, returning recorded outcome")
		outcome, err := j.outcomes.GetLatestOutcome(ctx, req.PRID, req.Revision)
		if err != nil {
			return nil, core.WrapError(core.KindInternal, err)
		}
		if outcome != nil {
			return outcome, nil
		}
		// Marker without a record: the outcome table was cleaned up or
		// the marker was written by an older deployment. Report done.
		return &core.JobOutcome{Request: req, Status: core.StatusCompleted, ActionTaken: core.ActionNone}, nil
	}

	log.Info("another worker holds the claim for this revision")
	return nil, ErrInProgress
}

// finishEmpty completes a job whose PR has no reviewable changes. No
// backend call is made; the outcome records an info review with no action.
func (j *ReviewJob) finishEmpty(ctx context.Context, req core.ReviewRequest, meta *core.PRMetadata, log *slog.Logger) (*core.JobOutcome, error) {
	outcome := &core.JobOutcome{
		Request:     req,
		Title:       meta.Title,
		Author:      meta.Author,
		ActionTaken: core.ActionNone,
		Result: core.ReviewResult{
			Severity:    core.SeverityInfo,
			GeneratedAt: j.now(),
		},
		Status: core.StatusCompleted,
	}
	if err := j.persist(ctx, outcome); err != nil {
		log.Error("failed to persist empty outcome", "error", err)
		return nil, core.WrapError(core.KindInternal, err)
	}
	return outcome, nil
}

// finishFailed records a generation failure as a durable failed outcome
// and terminates the marker, so the trigger layer can acknowledge instead
// of redelivering.
func (j *ReviewJob) finishFailed(ctx context.Context, req core.ReviewRequest, meta *core.PRMetadata, filesChanged int, genErr error, log *slog.Logger) (*core.JobOutcome, error) {
	generatedAt := j.now()
	failureDoc := fmt.Sprintf(
		"# Review Failed: %s\n\n**PR #%d** | Author: %s\n\nThe review backend did not produce a review.\n\nError kind: %s\n\n```\n%v\n```\n",
		meta.Title, req.PRID, meta.Author, core.KindOf(genErr), genErr)

	storagePath, err := j.reviews.SaveReview(ctx, req.PRID, generatedAt, failureDoc)
	if err != nil {
		log.Error("failed to store failure record", "error", err)
		return nil, core.WrapError(core.KindInternal, err)
	}

	outcome := &core.JobOutcome{
		Request:      req,
		Title:        meta.Title,
		Author:       meta.Author,
		FilesChanged: filesChanged,
		Result: core.ReviewResult{
			Severity:    core.SeverityInfo,
			GeneratedAt: generatedAt,
		},
		ActionTaken:   core.ActionNone,
		StoragePath:   storagePath,
		Status:        core.StatusFailed,
		FailureReason: genErr.Error(),
	}
	if err := j.persist(ctx, outcome); err != nil {
		log.Error("failed to persist failed outcome", "error", err)
		return nil, core.WrapError(core.KindInternal, err)
	}
	return outcome, nil
}

// loadRepoConfig fetches the repo's own review config from the PR head.
// Any failure falls back to defaults; repo config must never break a job.
func (j *ReviewJob) loadRepoConfig(ctx context.Context, ref string, log *slog.Logger) *core.RepoConfig {
	data, err := j.host.FetchRepoConfigData(ctx, ref)
	if err != nil {
		log.Warn("failed to fetch repo config, using defaults", "error", err)
		return core.DefaultRepoConfig()
	}
	repoConfig, err := config.ParseRepoConfig(data)
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			log.Warn("invalid repo config, using defaults", "error", err)
		}
		return core.DefaultRepoConfig()
	}
	return repoConfig
}

// filterFiles drops ignored paths and applies the repo's file cap.
func filterFiles(files []core.ChangedFile, repoConfig *core.RepoConfig) []core.ChangedFile {
	filtered := files[:0:0]
	for _, f := range files {
		if repoConfig.Ignored(f.Path) {
			continue
		}
		filtered = append(filtered, f)
	}
	if repoConfig.MaxFiles > 0 && len(filtered) > repoConfig.MaxFiles {
		filtered = filtered[:repoConfig.MaxFiles]
	}
	return filtered
}

func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
