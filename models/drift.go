package models

import "time"

// DriftMeasurement is the semantic distance between the current exchange and
// the session's rolling reference embedding. Score is non-negative cosine
// distance: 0 means identical direction, values near 2 mean opposite.
type DriftMeasurement struct {
	SessionID   string    `json:"session_id"`
	Score       float64   `json:"score"`
	RemoteScore float64   `json:"remote_score"`
	LocalScore  float64   `json:"local_score"`
	Backends    string    `json:"backends"` // e.g. "remote+local", "local"
	Fallback    bool      `json:"fallback"` // remote failed, local used instead
	Anomaly     bool      `json:"anomaly"`  // score is an outlier vs session history
	Timestamp   time.Time `json:"timestamp"`
}
