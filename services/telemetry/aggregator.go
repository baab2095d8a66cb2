package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/omniguard/llm-observability/config"
	"github.com/omniguard/llm-observability/models"
	"go.uber.org/zap"
)

// Metric and event names shipped to the observability backend.
const (
	MetricLatencyMs    = "llm.latency_ms"
	MetricInputTokens  = "llm.tokens.input"
	MetricOutputTokens = "llm.tokens.output"
	MetricTotalTokens  = "llm.tokens.total"
	MetricCostUSD      = "llm.cost_usd"
	MetricDriftScore   = "llm.embedding_drift.score"

	EventChatRequest   = "chat.request"
	EventChatResponse  = "chat.response"
	EventChatPartial   = "chat.partial"
	EventDriftDetected = "drift.detected"
	EventLatencyBreach = "latency.breach"
	EventCaseUpdated   = "case.updated"
	CaseDriftBreach    = "drift.threshold_breach"
	CaseLatencyBreach  = "latency.threshold_breach"
	breachKindDrift    = "drift"
	breachKindLatency  = "latency"
)

// Aggregator turns one exchange plus its derived signals into an ordered
// batch of telemetry events. It owns threshold evaluation and case
// deduplication; it does not talk to the network.
type Aggregator struct {
	cfg    config.TelemetryConfig
	logger *zap.Logger

	mu       sync.Mutex
	lastCase map[string]time.Time
	nowFn    func() time.Time
}

// NewAggregator creates an aggregator with the given thresholds.
func NewAggregator(cfg config.TelemetryConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		logger:   logger,
		lastCase: make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

// Compose builds the telemetry batch for one exchange: request/response logs,
// per-exchange metrics, threshold events, and at most one case per breach
// kind per session within the cooldown window. Event order within the batch
// is stable.
func (a *Aggregator) Compose(ex models.Exchange, usage models.Usage, drift *models.DriftMeasurement, sess models.Session) []models.TelemetryEvent {
	now := a.nowFn().UTC()
	base := sess.ObservabilityPayload()
	base["exchange_id"] = ex.ID.String()
	base["model"] = usage.Model

	events := make([]models.TelemetryEvent, 0, 12)

	reqAttrs := merged(base, map[string]interface{}{
		"text":       ex.InputText,
		"redactions": ex.InputRedactions,
	})
	events = append(events, models.NewTelemetryEvent(models.EventKindLog, EventChatRequest, reqAttrs, now))

	respAttrs := merged(base, map[string]interface{}{
		"text":       ex.OutputText,
		"redactions": ex.OutputRedactions,
		"partial":    ex.Partial,
	})
	events = append(events, models.NewTelemetryEvent(models.EventKindLog, EventChatResponse, respAttrs, now))

	events = append(events,
		a.metric(MetricLatencyMs, ex.LatencyMs, base, now),
		a.metric(MetricInputTokens, float64(usage.InputTokens), base, now),
		a.metric(MetricOutputTokens, float64(usage.OutputTokens), base, now),
		a.metric(MetricTotalTokens, float64(usage.TotalTokens), base, now),
	)
	if usage.PricingKnown {
		events = append(events, a.metric(MetricCostUSD, usage.CostUSD, base, now))
	}

	if drift != nil {
		driftBase := merged(base, map[string]interface{}{
			"drift.backends": drift.Backends,
			"drift.fallback": drift.Fallback,
			"drift.anomaly":  drift.Anomaly,
		})
		events = append(events, a.metric(MetricDriftScore, drift.Score, driftBase, now))

		if drift.Score > a.cfg.DriftThreshold {
			breachAttrs := merged(driftBase, map[string]interface{}{
				"drift.score":     drift.Score,
				"drift.threshold": a.cfg.DriftThreshold,
			})
			events = append(events, models.NewTelemetryEvent(models.EventKindEvent, EventDriftDetected, breachAttrs, now))
			events = append(events, a.escalate(ex.SessionID, breachKindDrift, CaseDriftBreach, breachAttrs, now))
		}
	}

	if ex.LatencyMs > a.cfg.LatencyThresholdMs {
		breachAttrs := merged(base, map[string]interface{}{
			"latency_ms":        ex.LatencyMs,
			"latency.threshold": a.cfg.LatencyThresholdMs,
		})
		events = append(events, models.NewTelemetryEvent(models.EventKindEvent, EventLatencyBreach, breachAttrs, now))
		events = append(events, a.escalate(ex.SessionID, breachKindLatency, CaseLatencyBreach, breachAttrs, now))
	}

	if ex.Partial {
		events = append(events, models.NewTelemetryEvent(models.EventKindEvent, EventChatPartial, base, now))
	}

	return events
}

// escalate returns a case event for a new breach, or a case-update event when
// a case of the same kind was already opened for this session within the
// cooldown window.
func (a *Aggregator) escalate(sessionID, kind, caseName string, attrs map[string]interface{}, now time.Time) models.TelemetryEvent {
	key := sessionID + "/" + kind

	a.mu.Lock()
	defer a.mu.Unlock()

	if opened, ok := a.lastCase[key]; ok && now.Sub(opened) < a.cfg.CaseCooldown {
		a.logger.Debug("breach within case cooldown, updating existing case",
			zap.String("session_id", sessionID),
			zap.String("kind", kind))
		updateAttrs := merged(attrs, map[string]interface{}{
			"case":         caseName,
			"breach_kind":  kind,
			"case_created": opened.Format(time.RFC3339),
		})
		return models.NewTelemetryEvent(models.EventKindEvent, EventCaseUpdated, updateAttrs, now)
	}

	a.lastCase[key] = now
	a.logger.Info("opening observability case",
		zap.String("session_id", sessionID),
		zap.String("kind", kind))
	caseAttrs := merged(attrs, map[string]interface{}{
		"breach_kind": kind,
		"title":       fmt.Sprintf("%s for session %s", caseName, sessionID),
	})
	return models.NewTelemetryEvent(models.EventKindCase, caseName, caseAttrs, now)
}

func (a *Aggregator) metric(name string, value float64, base map[string]interface{}, now time.Time) models.TelemetryEvent {
	attrs := merged(base, map[string]interface{}{"value": value})
	return models.NewTelemetryEvent(models.EventKindMetric, name, attrs, now)
}

func merged(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
