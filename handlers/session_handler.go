package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/utils"
	"go.uber.org/zap"
)

// SessionStore defines the session lookups the handler needs
type SessionStore interface {
	Snapshot(id string) (models.Session, error)
	All() []models.Session
}

// SessionHandler serves read-only session aggregates
type SessionHandler struct {
	store  SessionStore
	logger *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(store SessionStore, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		store:  store,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.All()
	if err := utils.WriteOK(w, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}); err != nil {
		h.logger.Error("failed to write sessions response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.store.Snapshot(id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, sess); err != nil {
		h.logger.Error("failed to write session response", zap.Error(err))
	}
}
