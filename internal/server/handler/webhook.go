package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sevigo/regression-warden/internal/core"
)

// WebhookHandler accepts PR update notifications and queues them for
// asynchronous review.
type WebhookHandler struct {
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given dispatcher.
func NewWebhookHandler(dispatcher core.JobDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

type webhookRequest struct {
	PRID      int    `json:"pr_id"`
	CommitSHA string `json:"commit_sha,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Handle validates a webhook payload and enqueues the review request.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PRID <= 0 {
		writeError(w, http.StatusBadRequest, "pr_id must be a positive integer")
		return
	}

	id, err := h.dispatcher.Dispatch(r.Context(), core.ReviewRequest{
		PRID:     req.PRID,
		Revision: req.CommitSHA,
		Source:   core.SourceWebhook,
	})
	if err != nil {
		h.logger.Error("failed to queue review request", "pr", req.PRID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue review request")
		return
	}

	h.logger.Info("review request accepted", "pr", req.PRID, "message_id", id)
	writeJSON(w, http.StatusAccepted, webhookResponse{MessageID: id, Status: "queued"})
}
