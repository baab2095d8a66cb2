package models

import (
	"time"
)

// Session aggregates state for one logical conversation. Values handed out
// by the tracker are snapshots: the DriftHistory slice is copied, so a
// Session is safe to read after the call that produced it returns.
type Session struct {
	ID                string    `json:"session_id"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	TurnCount         int       `json:"turn_count"`
	TotalInputTokens  int       `json:"total_input_tokens"`
	TotalOutputTokens int       `json:"total_output_tokens"`
	TotalTokens       int       `json:"total_tokens"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	DriftHistory      []float64 `json:"drift_history,omitempty"`
}

// ObservabilityPayload converts the session into a compact attribute map
// suitable for annotating telemetry events.
func (s *Session) ObservabilityPayload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":          s.ID,
		"created_at":          s.CreatedAt.UTC().Format(time.RFC3339),
		"last_activity":       s.LastActivity.UTC().Format(time.RFC3339),
		"turn_count":          s.TurnCount,
		"total_input_tokens":  s.TotalInputTokens,
		"total_output_tokens": s.TotalOutputTokens,
		"total_tokens":        s.TotalTokens,
		"total_cost_usd":      s.TotalCostUSD,
	}
}
