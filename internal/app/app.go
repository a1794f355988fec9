// Package app initializes and orchestrates the main components of the
// Regression-Warden service. It wires together the configuration, storage,
// queue, review pipeline and HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/regression-warden/internal/config"
	"github.com/sevigo/regression-warden/internal/db"
	"github.com/sevigo/regression-warden/internal/github"
	"github.com/sevigo/regression-warden/internal/jobs"
	"github.com/sevigo/regression-warden/internal/llm"
	"github.com/sevigo/regression-warden/internal/queue"
	"github.com/sevigo/regression-warden/internal/server"
	"github.com/sevigo/regression-warden/internal/storage"
)

// App holds the main application components.
type App struct {
	cfg      *config.Config
	server   *server.Server
	consumer *jobs.Consumer
	logger   *slog.Logger

	dbCleanup      func()
	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing Regression-Warden",
		"repo", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo,
		"llm_provider", cfg.LLM.Provider,
		"generator_model", cfg.LLM.GeneratorModelName,
		"max_workers", cfg.Jobs.MaxWorkers)

	dbConn, dbCleanup, err := db.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	reviewer, err := llm.NewReviewer(ctx, cfg, logger)
	if err != nil {
		dbCleanup()
		return nil, fmt.Errorf("failed to create review backend: %w", err)
	}

	host := github.NewPATClient(ctx, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo, logger)

	reviews := storage.NewFSReviewStore(cfg.Storage.Dir, logger)
	outcomes := storage.NewOutcomeStore(dbConn.DB)
	markers := storage.NewIdempotencyStore(dbConn.DB, cfg.Jobs.MarkerTTL)
	q := queue.NewQueue(dbConn.DB, cfg.Jobs.MaxDeliveryAttempts, cfg.Jobs.JobTimeout)

	job := jobs.NewReviewJob(cfg, host, reviewer, reviews, outcomes, markers, logger)
	dispatcher := jobs.NewQueueDispatcher(q, logger)
	consumer := jobs.NewConsumer(q, job, cfg.Jobs.MaxWorkers, cfg.Jobs.PollInterval, logger)
	reprocessor := jobs.NewReprocessor(q, markers, host, logger)

	httpServer := server.NewServer(cfg, job, dispatcher, reprocessor, logger)

	logger.Info("Regression-Warden initialized successfully")
	return &App{
		cfg:       cfg,
		server:    httpServer,
		consumer:  consumer,
		logger:    logger,
		dbCleanup: dbCleanup,
	}, nil
}

// Start runs the queue consumers and the HTTP server. It blocks until the
// server exits.
func (a *App) Start() error {
	consumerCtx, cancel := context.WithCancel(context.Background())
	a.consumerCancel = cancel
	a.consumerDone = make(chan struct{})

	go func() {
		defer close(a.consumerDone)
		if err := a.consumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
			a.logger.Error("queue consumer stopped unexpectedly", "error", err)
		}
	}()

	a.logger.Info("starting Regression-Warden",
		"server_port", a.cfg.ServerPort,
		"max_workers", a.cfg.Jobs.MaxWorkers)

	return a.server.Start()
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down Regression-Warden services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the queue consumers; in-flight messages are redelivered after
	// their lease expires.
	if a.consumerCancel != nil {
		a.consumerCancel()
		<-a.consumerDone
	}

	a.logger.Info("closing database connection")
	a.dbCleanup()

	if serverErr != nil {
		a.logger.Error("Regression-Warden stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("Regression-Warden stopped successfully")
	return nil
}
