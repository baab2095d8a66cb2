package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omniguard/llm-observability/internal/metrics"
	"github.com/omniguard/llm-observability/internal/providers"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services"
	"github.com/omniguard/llm-observability/services/drift"
	"github.com/omniguard/llm-observability/services/export"
	"github.com/omniguard/llm-observability/services/redaction"
	"github.com/omniguard/llm-observability/services/session"
	"github.com/omniguard/llm-observability/services/telemetry"
	"github.com/omniguard/llm-observability/services/usage"
	"go.uber.org/zap"
)

// Request is a provider-neutral chat request.
type Request struct {
	SessionID       string
	Messages        []providers.Message
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens *int
}

// Result is the outcome of one exchange: the completion plus everything the
// pipeline derived from it.
type Result struct {
	SessionID  string
	ExchangeID uuid.UUID
	Text       string
	Partial    bool
	LatencyMs  float64
	Usage      models.Usage
	Drift      *models.DriftMeasurement
	Session    models.Session
}

// Service orchestrates the observability pipeline around each provider call:
// redact, extract usage, measure drift, fold into the session, compose and
// export telemetry. The provider response itself passes through unmodified;
// redaction applies only to what leaves the process as telemetry.
type Service struct {
	provider   providers.Provider
	model      string
	extractor  *usage.Extractor
	detector   *drift.Detector
	tracker    *session.Tracker
	aggregator *telemetry.Aggregator
	exporter   export.Exporter
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the pipeline stages together. model is the configured
// provider model name, used to attribute streams that end before usage
// metadata arrives.
func NewService(
	provider providers.Provider,
	model string,
	extractor *usage.Extractor,
	detector *drift.Detector,
	tracker *session.Tracker,
	aggregator *telemetry.Aggregator,
	exporter export.Exporter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		provider:   provider,
		model:      model,
		extractor:  extractor,
		detector:   detector,
		tracker:    tracker,
		aggregator: aggregator,
		exporter:   exporter,
		metrics:    m,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// ProcessChat runs one blocking exchange. A provider failure is returned to
// the caller and leaves the session untouched; failures in any derived
// signal degrade the telemetry instead of the response.
func (s *Service) ProcessChat(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	sessionID := s.ensureSession(req.SessionID)

	start := time.Now()
	completion, err := s.provider.Complete(ctx, providers.CompletionRequest{
		Messages:        req.Messages,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxOutputTokens,
	})
	latency := time.Since(start)
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues("chat", "error").Inc()
		s.logger.Error("provider call failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, err
	}
	s.metrics.ProviderLatency.Observe(latency.Seconds())
	s.metrics.RequestsTotal.WithLabelValues("chat", "ok").Inc()

	result := s.finishExchange(ctx, sessionID, req, completion.Text, completion.Usage, latency, false)
	return result, nil
}

// ProcessChatStream runs one streamed exchange, forwarding each text delta
// to emit as it arrives. When the stream is cut short, by context
// cancellation, an emit failure, or an upstream error after partial output,
// the partial exchange is still recorded with exactly one turn increment.
// An upstream failure before any output is returned as an error instead.
func (s *Service) ProcessChatStream(ctx context.Context, req Request, emit func(delta string) error) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	sessionID := s.ensureSession(req.SessionID)

	start := time.Now()
	ch, err := s.provider.StreamComplete(ctx, providers.CompletionRequest{
		Messages:        req.Messages,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxOutputTokens,
	})
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues("chat_stream", "error").Inc()
		s.logger.Error("provider stream failed to start",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, err
	}

	var text strings.Builder
	var reported providers.TokenUsage
	reported.Model = s.model
	partial := false

	for chunk := range ch {
		if chunk.Err != nil {
			if text.Len() == 0 {
				s.metrics.RequestsTotal.WithLabelValues("chat_stream", "error").Inc()
				return nil, services.WrapUpstream("provider stream failed", chunk.Err)
			}
			s.logger.Warn("provider stream interrupted, recording partial exchange",
				zap.String("session_id", sessionID),
				zap.Error(chunk.Err))
			partial = true
			break
		}
		if chunk.Usage != nil {
			reported = *chunk.Usage
		}
		if chunk.Text == "" {
			continue
		}
		text.WriteString(chunk.Text)
		if err := emit(chunk.Text); err != nil {
			s.logger.Warn("client stopped consuming stream, recording partial exchange",
				zap.String("session_id", sessionID),
				zap.Error(err))
			partial = true
			break
		}
	}
	latency := time.Since(start)
	s.metrics.ProviderLatency.Observe(latency.Seconds())
	outcome := "ok"
	if partial {
		outcome = "partial"
	}
	s.metrics.RequestsTotal.WithLabelValues("chat_stream", outcome).Inc()

	result := s.finishExchange(ctx, sessionID, req, text.String(), reported, latency, partial)
	return result, nil
}

// finishExchange runs the post-completion pipeline stages. The per-session
// lock spans drift measurement and session recording so concurrent exchanges
// in one session observe the reference embedding and the turn counter in a
// consistent order.
func (s *Service) finishExchange(ctx context.Context, sessionID string, req Request, outputText string, reported providers.TokenUsage, latency time.Duration, partial bool) *Result {
	inputText, inputCounts := redaction.RedactMessages(messageContents(req.Messages))
	redactedOutput, outputCounts := redaction.Redact(outputText)
	s.countRedactions(inputCounts)
	s.countRedactions(outputCounts)

	u := s.extractor.Extract(usage.ProviderUsage{
		Model:        reported.Model,
		InputTokens:  reported.InputTokens,
		OutputTokens: reported.OutputTokens,
		TotalTokens:  reported.TotalTokens,
	})

	// Drift tracks what the model says, not what the user asks: the raw
	// output text is embedded, so repeated identical prompts with shifting
	// answers still register. A cancelled request must still produce its
	// telemetry, so the measurement runs detached from the request context.
	lock := s.sessionLock(sessionID)
	lock.Lock()
	measurement := s.detector.Measure(context.WithoutCancel(ctx), sessionID, outputText)
	sess := s.tracker.RecordExchange(sessionID, u, measurement)
	lock.Unlock()

	if measurement != nil && measurement.Fallback {
		s.metrics.DriftFallbacks.Inc()
	}

	exchange := models.Exchange{
		ID:               uuid.New(),
		SessionID:        sessionID,
		InputText:        inputText,
		OutputText:       redactedOutput,
		InputRedactions:  redaction.CountsToAttributes(inputCounts),
		OutputRedactions: redaction.CountsToAttributes(outputCounts),
		LatencyMs:        float64(latency.Milliseconds()),
		Partial:          partial,
	}
	s.exporter.Export(s.aggregator.Compose(exchange, u, measurement, sess))

	return &Result{
		SessionID:  sessionID,
		ExchangeID: exchange.ID,
		Text:       outputText,
		Partial:    partial,
		LatencyMs:  exchange.LatencyMs,
		Usage:      u,
		Drift:      measurement,
		Session:    sess,
	}
}

// Sessions exposes the tracker for the session endpoints.
func (s *Service) Sessions() *session.Tracker {
	return s.tracker
}

func (s *Service) ensureSession(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	s.tracker.GetOrCreate(id)
	return id
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Service) countRedactions(counts map[redaction.Category]int) {
	for cat, n := range counts {
		if n > 0 {
			s.metrics.RedactionsTotal.WithLabelValues(string(cat)).Add(float64(n))
		}
	}
}

func validate(req Request) error {
	if len(req.Messages) == 0 {
		return services.ErrEmptyMessages
	}
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return services.NewDomainError(services.ErrorTypeValidation, "message content cannot be empty", services.ErrInvalidInput)
		}
	}
	return nil
}

func messageContents(messages []providers.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == "user" {
			out = append(out, m.Content)
		}
	}
	return out
}
