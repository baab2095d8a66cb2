package models

import "time"

// EventKind discriminates the telemetry event union.
type EventKind string

const (
	EventKindLog    EventKind = "log"
	EventKindMetric EventKind = "metric"
	EventKindEvent  EventKind = "event"
	EventKindCase   EventKind = "case"
)

// TelemetryEvent is an immutable, self-describing telemetry record. Ownership
// passes to the Exporter, which may drop it on transport failure.
type TelemetryEvent struct {
	Kind       EventKind
	Name       string
	Attributes map[string]interface{}
	Timestamp  time.Time
}

// NewTelemetryEvent builds an event, copying the attribute map so the caller
// cannot mutate the event after construction.
func NewTelemetryEvent(kind EventKind, name string, attrs map[string]interface{}, ts time.Time) TelemetryEvent {
	copied := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return TelemetryEvent{
		Kind:       kind,
		Name:       name,
		Attributes: copied,
		Timestamp:  ts,
	}
}

// Attr returns a single attribute value, or nil when absent.
func (e TelemetryEvent) Attr(key string) interface{} {
	return e.Attributes[key]
}

// FloatAttr returns a numeric attribute coerced to float64.
func (e TelemetryEvent) FloatAttr(key string) (float64, bool) {
	switch v := e.Attributes[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
