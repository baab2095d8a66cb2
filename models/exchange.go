package models

import "github.com/google/uuid"

// Exchange is one request/response round-trip with the LLM provider. It is
// created per call and owned by the request flow; it is not retained beyond
// producing its telemetry events.
type Exchange struct {
	ID               uuid.UUID
	SessionID        string
	InputText        string // redacted
	OutputText       string // redacted
	InputRedactions  map[string]int
	OutputRedactions map[string]int
	LatencyMs        float64
	Partial          bool // stream aborted before completion
}
