// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"time"
)

// Severity is the ordered regression-risk classification of a review.
// The ordering matters: info < warning < blocking.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityBlocking
)

// String returns the canonical lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityBlocking:
		return "blocking"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// ParseSeverity maps a textual severity marker to its Severity value.
// Unknown values map to info, so a model that invents its own labels
// never blocks the pipeline.
func ParseSeverity(s string) Severity {
	switch s {
	case "blocking":
		return SeverityBlocking
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// RequestSource identifies which entry point created a ReviewRequest.
type RequestSource string

const (
	SourceManual    RequestSource = "manual"
	SourceWebhook   RequestSource = "webhook"
	SourceDLQReplay RequestSource = "dlq-replay"
)

// ReviewRequest is the trigger for exactly one review job. It is created
// per trigger and never mutated. Revision may be empty for manual triggers;
// the job resolves it from the PR head before claiming the identity key.
type ReviewRequest struct {
	PRID     int
	Revision string
	Source   RequestSource
}

// IdentityKey uniquely identifies one reviewable unit of work.
func (r ReviewRequest) IdentityKey() string {
	return fmt.Sprintf("pr-%d-%s", r.PRID, r.Revision)
}

// PRMetadata is the host's view of the pull request under review.
type PRMetadata struct {
	Title     string
	Author    string
	SourceRef string
	TargetRef string
	HeadSHA   string
	BaseSHA   string
}

// ChangedFile carries the full before/after content of one file in the PR.
// Binary files carry no content and are excluded from the review prompt.
type ChangedFile struct {
	Path          string
	ChangeType    string
	BeforeContent *string
	AfterContent  *string
	IsBinary      bool
}

// ReviewResult is the classified output of the review backend.
type ReviewResult struct {
	Markdown    string
	Severity    Severity
	GeneratedAt time.Time
}

// Action is the severity-gated action taken on the PR.
type Action string

const (
	ActionNone      Action = "none"
	ActionCommented Action = "commented"
	ActionRejected  Action = "rejected"
)

// JobStatus is the terminal status of a review job.
type JobStatus string

const (
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// JobOutcome is produced once per job and persisted to durable storage.
// It is never mutated after write; a new revision produces a new outcome.
type JobOutcome struct {
	Request       ReviewRequest
	Title         string
	Author        string
	FilesChanged  int
	Result        ReviewResult
	ActionTaken   Action
	Commented     bool
	StoragePath   string
	Status        JobStatus
	FailureReason string
}

// MarkerState is the lifecycle state of an idempotency marker.
type MarkerState string

const (
	MarkerInProgress MarkerState = "in-progress"
	MarkerDone       MarkerState = "done"
)

// IdempotencyMarker is the durable record preventing duplicate side effects
// for one identity key. At most one job holds in-progress for a key at a
// time; done is terminal until cleared by the dead-letter reprocessor.
type IdempotencyMarker struct {
	PRID      int
	Revision  string
	State     MarkerState
	CreatedAt time.Time
}

// Stale reports whether an in-progress marker is older than the given bound
// and may be reclaimed by a new claim attempt.
func (m IdempotencyMarker) Stale(bound time.Duration, now time.Time) bool {
	return m.State == MarkerInProgress && now.Sub(m.CreatedAt) > bound
}

// QueueMessage is one at-least-once delivery unit on the review trigger
// queue. It mirrors the webhook payload plus broker bookkeeping.
type QueueMessage struct {
	ID         string
	PRID       int
	Revision   string
	Source     RequestSource
	ReceivedAt time.Time
	Attempts   int
}

// Request converts a queue message back into the review request it carries.
func (m QueueMessage) Request() ReviewRequest {
	return ReviewRequest{PRID: m.PRID, Revision: m.Revision, Source: m.Source}
}
