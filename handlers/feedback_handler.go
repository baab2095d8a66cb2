package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/omniguard/llm-observability/services/feedback"
	"github.com/omniguard/llm-observability/utils"
	"go.uber.org/zap"
)

// FeedbackRequest is the inbound feedback payload
type FeedbackRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment   string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// FeedbackService defines the feedback operations the handler needs
type FeedbackService interface {
	Record(sessionID string, rating int, comment string) error
	SessionSummary(sessionID string) (feedback.Summary, error)
	GlobalSummary() feedback.Summary
}

// FeedbackHandler handles feedback HTTP requests
type FeedbackHandler struct {
	service FeedbackService
	logger  *zap.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(service FeedbackService, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSubmit handles POST /api/v1/feedback
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid JSON payload", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.service.Record(req.SessionID, req.Rating, req.Comment); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteAccepted(w, map[string]string{"status": "recorded"}); err != nil {
		h.logger.Error("failed to write feedback response", zap.Error(err))
	}
}

// HandleSummary handles GET /api/v1/feedback/{sessionID}
func (h *FeedbackHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.service.SessionSummary(sessionID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, summary); err != nil {
		h.logger.Error("failed to write feedback summary", zap.Error(err))
	}
}
