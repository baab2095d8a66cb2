package feedback

import (
	"sync"
	"time"

	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services"
	"go.uber.org/zap"
)

// MetricRating is the metric name for exported feedback ratings.
const MetricRating = "llm.feedback.rating"

// Summary aggregates user feedback for one session or globally.
type Summary struct {
	SessionID string  `json:"session_id,omitempty"`
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
	Last      int     `json:"last"`
}

// Service collects user ratings per session and turns each rating into a
// telemetry metric.
type Service struct {
	exporter exporter
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*aggregate
	global   aggregate
}

type aggregate struct {
	count int
	sum   int
	last  int
}

type exporter interface {
	Export(events []models.TelemetryEvent)
}

// NewService creates a feedback service shipping ratings via the exporter.
func NewService(exp exporter, logger *zap.Logger) *Service {
	return &Service{
		exporter: exp,
		logger:   logger,
		sessions: make(map[string]*aggregate),
	}
}

// Record stores one rating (1 to 5) for a session and exports it as a
// metric. Out-of-range ratings are rejected.
func (s *Service) Record(sessionID string, rating int, comment string) error {
	if sessionID == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "session_id is required", services.ErrInvalidInput)
	}
	if rating < 1 || rating > 5 {
		return services.NewDomainError(services.ErrorTypeValidation, "rating must be between 1 and 5", services.ErrInvalidInput).
			WithDetail("rating", rating)
	}

	s.mu.Lock()
	agg, ok := s.sessions[sessionID]
	if !ok {
		agg = &aggregate{}
		s.sessions[sessionID] = agg
	}
	agg.count++
	agg.sum += rating
	agg.last = rating
	s.global.count++
	s.global.sum += rating
	s.global.last = rating
	s.mu.Unlock()

	s.logger.Info("recorded feedback",
		zap.String("session_id", sessionID),
		zap.Int("rating", rating))

	attrs := map[string]interface{}{
		"session_id": sessionID,
		"value":      float64(rating),
	}
	if comment != "" {
		attrs["comment"] = comment
	}
	s.exporter.Export([]models.TelemetryEvent{
		models.NewTelemetryEvent(models.EventKindMetric, MetricRating, attrs, time.Now().UTC()),
	})
	return nil
}

// SessionSummary returns the aggregate for one session.
func (s *Service) SessionSummary(sessionID string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.sessions[sessionID]
	if !ok {
		return Summary{}, services.NewDomainError(services.ErrorTypeNotFound, "no feedback for session", services.ErrSessionNotFound).
			WithDetail("session_id", sessionID)
	}
	return summarize(sessionID, *agg), nil
}

// GlobalSummary returns the aggregate across all sessions.
func (s *Service) GlobalSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize("", s.global)
}

func summarize(sessionID string, agg aggregate) Summary {
	out := Summary{SessionID: sessionID, Count: agg.count, Last: agg.last}
	if agg.count > 0 {
		out.Average = float64(agg.sum) / float64(agg.count)
	}
	return out
}
