package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/jobs"
)

const defaultReplayBatch = 50

// Reprocessor replays dead-lettered messages. Satisfied by jobs.Reprocessor.
type Reprocessor interface {
	Reprocess(ctx context.Context, max int, dryRun bool) (*jobs.ReplaySummary, error)
}

// ReprocessHandler replays dead-lettered review requests back onto the
// live queue.
type ReprocessHandler struct {
	reprocessor Reprocessor
	logger      *slog.Logger
}

// NewReprocessHandler creates a handler for dead-letter reprocessing.
func NewReprocessHandler(reprocessor Reprocessor, logger *slog.Logger) *ReprocessHandler {
	return &ReprocessHandler{reprocessor: reprocessor, logger: logger}
}

type reprocessRequest struct {
	Max    int  `json:"max,omitempty"`
	DryRun bool `json:"dry_run,omitempty"`
}

// Handle triggers one reprocessing run. An empty body runs with defaults.
func (h *ReprocessHandler) Handle(w http.ResponseWriter, r *http.Request) {
	req := reprocessRequest{Max: defaultReplayBatch}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Max <= 0 {
		req.Max = defaultReplayBatch
	}

	summary, err := h.reprocessor.Reprocess(r.Context(), req.Max, req.DryRun)
	if err != nil {
		h.logger.Error("dead-letter reprocessing failed", "error", err)
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
