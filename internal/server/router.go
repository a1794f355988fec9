package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sevigo/regression-warden/internal/config"
	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/jobs"
	"github.com/sevigo/regression-warden/internal/server/handler"
)

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(cfg *config.Config, job core.Job, dispatcher core.JobDispatcher, reprocessor *jobs.Reprocessor, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.APIKeyAuth(cfg.APIKey, logger))

		reviewHandler := handler.NewReviewHandler(job, logger)
		r.Post("/reviews", reviewHandler.Handle)

		webhookHandler := handler.NewWebhookHandler(dispatcher, logger)
		r.Post("/webhook", webhookHandler.Handle)

		reprocessHandler := handler.NewReprocessHandler(reprocessor, logger)
		r.Post("/dead-letters/reprocess", reprocessHandler.Handle)
	})

	return r
}
