package handlers

import (
	"net/http"

	"github.com/omniguard/llm-observability/utils"
)

// HealthHandler handles liveness probes. The pipeline keeps no external
// connections that could go stale, so liveness is the only signal served.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// HandleHealth handles GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}
