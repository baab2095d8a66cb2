package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/omniguard/llm-observability/internal/providers"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services/chat"
	"github.com/omniguard/llm-observability/utils"
	"go.uber.org/zap"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	SessionID       string        `json:"session_id,omitempty"`
	Messages        []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature     *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP            *float64      `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxOutputTokens *int          `json:"max_output_tokens,omitempty" validate:"omitempty,gt=0"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatResponse is the outbound chat payload, including the signals the
// pipeline derived from the exchange.
type ChatResponse struct {
	SessionID  string          `json:"session_id"`
	ExchangeID string          `json:"exchange_id"`
	Text       string          `json:"text"`
	Partial    bool            `json:"partial,omitempty"`
	LatencyMs  float64         `json:"latency_ms"`
	Usage      ChatUsage       `json:"usage"`
	Drift      *DriftSignal    `json:"drift,omitempty"`
	Session    SessionSnapshot `json:"session"`
}

// ChatUsage represents token usage and cost information
type ChatUsage struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	PricingKnown bool    `json:"pricing_known"`
}

// DriftSignal is the drift measurement attached to a response
type DriftSignal struct {
	Score    float64 `json:"score"`
	Backends string  `json:"backends"`
	Fallback bool    `json:"fallback"`
	Anomaly  bool    `json:"anomaly"`
}

// SessionSnapshot is the per-session aggregate returned with each exchange
type SessionSnapshot struct {
	TurnCount    int     `json:"turn_count"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// StreamDelta is one JSON line of a streamed response. Either Delta is set,
// or Done is true and the summary fields are populated.
type StreamDelta struct {
	Delta     string       `json:"delta,omitempty"`
	Done      bool         `json:"done,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Partial   bool         `json:"partial,omitempty"`
	LatencyMs float64      `json:"latency_ms,omitempty"`
	Usage     *ChatUsage   `json:"usage,omitempty"`
	Drift     *DriftSignal `json:"drift,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ChatService defines the pipeline operations the handler needs
type ChatService interface {
	ProcessChat(ctx context.Context, req chat.Request) (*chat.Result, error)
	ProcessChatStream(ctx context.Context, req chat.Request, emit func(delta string) error) (*chat.Result, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.service.ProcessChat(r.Context(), toServiceRequest(req))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, toResponse(result)); err != nil {
		h.logger.Error("failed to write chat response", zap.Error(err))
	}
}

// HandleChatStream handles POST /api/v1/chat/stream, emitting one JSON line
// per delta followed by a final summary line.
func (h *ChatHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		_ = utils.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	encoder := json.NewEncoder(w)

	result, err := h.service.ProcessChatStream(r.Context(), toServiceRequest(req), func(delta string) error {
		if err := encoder.Encode(StreamDelta{Delta: delta}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Nothing was streamed yet; the error line is the whole response.
		_ = encoder.Encode(StreamDelta{Done: true, Error: err.Error()})
		flusher.Flush()
		return
	}

	usage := toUsage(result.Usage)
	final := StreamDelta{
		Done:      true,
		SessionID: result.SessionID,
		Partial:   result.Partial,
		LatencyMs: result.LatencyMs,
		Usage:     &usage,
		Drift:     toDrift(result.Drift),
	}
	if err := encoder.Encode(final); err != nil {
		h.logger.Warn("failed to write stream summary", zap.Error(err))
	}
	flusher.Flush()
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid JSON payload", nil)
		return req, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return req, false
	}
	return req, true
}

func toServiceRequest(req ChatRequest) chat.Request {
	messages := make([]providers.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	return chat.Request{
		SessionID:       req.SessionID,
		Messages:        messages,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxOutputTokens,
	}
}

func toResponse(result *chat.Result) ChatResponse {
	return ChatResponse{
		SessionID:  result.SessionID,
		ExchangeID: result.ExchangeID.String(),
		Text:       result.Text,
		Partial:    result.Partial,
		LatencyMs:  result.LatencyMs,
		Usage:      toUsage(result.Usage),
		Drift:      toDrift(result.Drift),
		Session: SessionSnapshot{
			TurnCount:    result.Session.TurnCount,
			TotalTokens:  result.Session.TotalTokens,
			TotalCostUSD: result.Session.TotalCostUSD,
		},
	}
}

func toUsage(u models.Usage) ChatUsage {
	return ChatUsage{
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
		CostUSD:      u.CostUSD,
		PricingKnown: u.PricingKnown,
	}
}

func toDrift(d *models.DriftMeasurement) *DriftSignal {
	if d == nil {
		return nil
	}
	return &DriftSignal{
		Score:    d.Score,
		Backends: d.Backends,
		Fallback: d.Fallback,
		Anomaly:  d.Anomaly,
	}
}
