package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omniguard/llm-observability/internal/gcp"
	"github.com/omniguard/llm-observability/services"
	"go.uber.org/zap"
)

// RemoteEmbedder calls the Vertex AI text embedding prediction endpoint.
type RemoteEmbedder struct {
	baseURL string
	model   string
	tokens  gcp.TokenSource
	client  *http.Client
	logger  *zap.Logger
}

// RemoteConfig carries the Vertex connection parameters for embeddings.
type RemoteConfig struct {
	ProjectID string
	Location  string
	Model     string
	Timeout   time.Duration

	// BaseURL overrides the regional Vertex endpoint. Used in tests.
	BaseURL string
}

// NewRemoteEmbedder creates a Vertex-backed embedder.
func NewRemoteEmbedder(cfg RemoteConfig, tokens gcp.TokenSource, logger *zap.Logger) *RemoteEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s",
			cfg.Location, cfg.ProjectID, cfg.Location, cfg.Model,
		)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemoteEmbedder{
		baseURL: baseURL,
		model:   cfg.Model,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (e *RemoteEmbedder) Name() string { return "remote" }

type predictRequest struct {
	Instances []predictInstance `json:"instances"`
}

type predictInstance struct {
	Content string `json:"content"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embed requests an embedding from Vertex. Upstream failures are wrapped as
// degraded errors so the drift detector can fall back to the local backend.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Content: text}},
	})
	if err != nil {
		return nil, services.WrapInternal("encoding embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+":predict", bytes.NewReader(payload))
	if err != nil {
		return nil, services.WrapInternal("building embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, services.WrapDegraded("fetching embedding access token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, services.WrapDegraded("calling embedding endpoint", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, services.WrapDegraded("reading embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("embedding endpoint returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("model", e.model))
		return nil, services.WrapDegraded("calling embedding endpoint",
			fmt.Errorf("embedding endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed predictResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.WrapDegraded("parsing embedding response", err)
	}
	if len(parsed.Predictions) == 0 || len(parsed.Predictions[0].Embeddings.Values) == 0 {
		return nil, services.WrapDegraded("embedding response contained no values", services.ErrEmbeddingUnavailable)
	}
	return parsed.Predictions[0].Embeddings.Values, nil
}
