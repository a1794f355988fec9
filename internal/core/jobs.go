package core

import (
	"context"
)

// Job represents a single, executable unit of work. Each job is triggered
// by a ReviewRequest and turns it into exactly one durable JobOutcome.
type Job interface {
	// Run executes the job's pipeline. A non-nil outcome is returned even
	// for recorded failures; err carries the classified error when the job
	// could not reach a durable outcome at all.
	Run(ctx context.Context, req ReviewRequest) (*JobOutcome, error)
}

// JobDispatcher accepts review requests for asynchronous processing. It
// decouples the trigger source (webhook handler, CLI) from the queue and
// worker mechanics, and provides backpressure via its error return.
type JobDispatcher interface {
	Dispatch(ctx context.Context, req ReviewRequest) (messageID string, err error)
}
