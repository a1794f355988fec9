package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/jobs"
)

// reviewPreviewLimit caps how much of the review body the sync response
// carries inline; the full text lives under the storage path.
const reviewPreviewLimit = 500

// ReviewHandler runs a review synchronously and returns its outcome.
type ReviewHandler struct {
	job    core.Job
	logger *slog.Logger
}

// NewReviewHandler creates a handler for synchronous review requests.
func NewReviewHandler(job core.Job, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{job: job, logger: logger}
}

type reviewRequest struct {
	PRID     int    `json:"pr_id"`
	Revision string `json:"revision,omitempty"`
}

type reviewResponse struct {
	PRID          int    `json:"pr_id"`
	Revision      string `json:"revision"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	FilesChanged  int    `json:"files_changed"`
	MaxSeverity   string `json:"max_severity"`
	HasBlocking   bool   `json:"has_blocking"`
	HasWarning    bool   `json:"has_warning"`
	ActionTaken   string `json:"action_taken"`
	Commented     bool   `json:"commented"`
	StoragePath   string `json:"storage_path,omitempty"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	ReviewPreview string `json:"review_preview,omitempty"`
}

// Handle runs the full review pipeline inline and returns the outcome.
func (h *ReviewHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PRID <= 0 {
		writeError(w, http.StatusBadRequest, "pr_id must be a positive integer")
		return
	}

	outcome, err := h.job.Run(r.Context(), core.ReviewRequest{
		PRID:     req.PRID,
		Revision: req.Revision,
		Source:   core.SourceManual,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("synchronous review failed", "pr", req.PRID, "error", err)
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, outcomeToResponse(outcome))
}

func outcomeToResponse(o *core.JobOutcome) reviewResponse {
	severity := o.Result.Severity
	return reviewResponse{
		PRID:          o.Request.PRID,
		Revision:      o.Request.Revision,
		Title:         o.Title,
		Author:        o.Author,
		FilesChanged:  o.FilesChanged,
		MaxSeverity:   severity.String(),
		HasBlocking:   severity >= core.SeverityBlocking,
		HasWarning:    severity >= core.SeverityWarning,
		ActionTaken:   string(o.ActionTaken),
		Commented:     o.Commented,
		StoragePath:   o.StoragePath,
		Status:        string(o.Status),
		FailureReason: o.FailureReason,
		ReviewPreview: preview(o.Result.Markdown, reviewPreviewLimit),
	}
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
