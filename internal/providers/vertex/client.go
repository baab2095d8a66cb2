package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omniguard/llm-observability/config"
	"github.com/omniguard/llm-observability/internal/gcp"
	"github.com/omniguard/llm-observability/internal/providers"
	"github.com/omniguard/llm-observability/services"
	"go.uber.org/zap"
)

// Client is a Vertex AI Gemini client speaking the generateContent REST API.
type Client struct {
	baseURL string
	model   string
	tokens  gcp.TokenSource
	client  *http.Client
	logger  *zap.Logger
}

// Option overrides client construction, used by tests.
type Option func(*Client)

// WithBaseURL points the client at an explicit model base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a Vertex client for the configured project and model.
func NewClient(cfg config.LLMConfig, tokens gcp.TokenSource, logger *zap.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s",
			cfg.Location, cfg.ProjectID, cfg.Location, cfg.Model,
		),
		model:  cfg.Model,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "vertex" }

// Wire types for the generateContent API.

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Complete calls generateContent and collapses the candidates into a single
// completion.
func (c *Client) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.Completion, error) {
	body, err := c.do(ctx, ":generateContent", req, "")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 16<<20))
	if err != nil {
		return nil, services.WrapUpstream("reading completion response", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, services.WrapUpstream("parsing completion response", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeUpstream, "empty response from provider", services.ErrEmptyCompletion)
	}

	candidate := parsed.Candidates[0]
	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}

	completion := &providers.Completion{
		Text:         text.String(),
		FinishReason: candidate.FinishReason,
		Usage:        providers.TokenUsage{Model: c.model},
	}
	if parsed.UsageMetadata != nil {
		completion.Usage.InputTokens = parsed.UsageMetadata.PromptTokenCount
		completion.Usage.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
		completion.Usage.TotalTokens = parsed.UsageMetadata.TotalTokenCount
	}
	return completion, nil
}

// StreamComplete calls streamGenerateContent with SSE framing and forwards
// text deltas as they arrive.
func (c *Client) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	body, err := c.do(ctx, ":streamGenerateContent", req, "alt=sse")
	if err != nil {
		return nil, err
	}

	ch := make(chan providers.StreamChunk)
	go c.readStream(ctx, body, ch)
	return ch, nil
}

func (c *Client) do(ctx context.Context, method string, req providers.CompletionRequest, query string) (io.ReadCloser, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, services.WrapInternal("encoding provider request", err)
	}

	url := c.baseURL + method
	if query != "" {
		url += "?" + query
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, services.WrapInternal("building provider request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, services.WrapUpstream("fetching provider access token", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeUpstream, "provider request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		c.logger.Warn("provider returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.model))
		return nil, services.NewDomainError(services.ErrorTypeUpstream,
			fmt.Sprintf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			services.ErrProviderUnavailable)
	}
	return resp.Body, nil
}

// buildRequest converts the provider-neutral request into Vertex wire form.
// System messages become the systemInstruction; assistant turns map to the
// "model" role.
func buildRequest(req providers.CompletionRequest) generateRequest {
	out := generateRequest{}

	var system []part
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, part{Text: m.Content})
		case "assistant":
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: system}
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxOutputTokens != nil {
		out.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxOutputTokens,
		}
	}
	return out
}

// scannerBufferSize is the max SSE line the stream scanner accepts. Vertex
// data lines carry whole JSON chunks and can exceed the bufio default.
const scannerBufferSize = 1 << 20
