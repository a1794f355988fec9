package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/queue"
)

// QueueDispatcher publishes review requests onto the durable queue and
// returns the queued entry's id. It satisfies core.JobDispatcher.
type QueueDispatcher struct {
	queue  queue.Queue
	logger *slog.Logger
}

// NewQueueDispatcher creates a dispatcher backed by the given queue.
func NewQueueDispatcher(q queue.Queue, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{queue: q, logger: logger}
}

// Dispatch enqueues a review request for asynchronous processing.
func (d *QueueDispatcher) Dispatch(ctx context.Context, req core.ReviewRequest) (string, error) {
	id, err := d.queue.Publish(ctx, req)
	if err != nil {
		return "", core.WrapError(core.KindInternal, err)
	}
	d.logger.Info("review request queued", "message_id", id, "pr", req.PRID)
	return id, nil
}

// Consumer pulls queued review requests and feeds them to the job. Each
// message is processed at least once; terminal errors move it to the
// dead-letter table instead of looping.
type Consumer struct {
	queue        queue.Queue
	job          core.Job
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a consumer with the given worker count.
func NewConsumer(q queue.Queue, job core.Job, workers int, pollInterval time.Duration, logger *slog.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Consumer{
		queue:        q,
		job:          job,
		workers:      workers,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting queue consumers", "workers", c.workers, "poll_interval", c.pollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			return c.runWorker(ctx, worker)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) runWorker(ctx context.Context, worker int) error {
	log := c.logger.With("worker", worker)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before going back to sleep.
		for {
			msg, err := c.queue.Pull(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("failed to pull from queue", "error", err)
				break
			}
			if msg == nil {
				break
			}
			c.process(ctx, msg, log)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process runs the job for one message and settles it according to the
// error kind: duplicates and invalid requests are acknowledged, auth and
// not-found failures go to the dead-letter table, everything else is
// returned to the queue for redelivery.
func (c *Consumer) process(ctx context.Context, msg *core.QueueMessage, log *slog.Logger) {
	log = log.With("message_id", msg.ID, "pr", msg.PRID, "attempt", msg.Attempts)
	log.Info("processing queued review request")

	_, err := c.job.Run(ctx, msg.Request())
	switch {
	case err == nil, errors.Is(err, ErrInProgress):
		if ackErr := c.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error("failed to ack message", "error", ackErr)
		}

	case core.KindOf(err) == core.KindInvalid:
		log.Warn("dropping malformed review request", "error", err)
		if ackErr := c.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error("failed to ack malformed message", "error", ackErr)
		}

	case core.KindOf(err) == core.KindAuth, core.KindOf(err) == core.KindNotFound:
		// Redelivery cannot fix bad credentials or a vanished PR.
		log.Warn("moving message to dead-letter table", "kind", core.KindOf(err), "error", err)
		if dlErr := c.queue.DeadLetter(ctx, msg.ID, err.Error()); dlErr != nil {
			log.Error("failed to dead-letter message", "error", dlErr)
		}

	default:
		log.Warn("job failed, returning message for redelivery", "kind", core.KindOf(err), "error", err)
		if nackErr := c.queue.Nack(ctx, msg.ID, err.Error()); nackErr != nil {
			log.Error("failed to nack message", "error", nackErr)
		}
	}
}
