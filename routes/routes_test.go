package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omniguard/llm-observability/app"
	"github.com/omniguard/llm-observability/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{
		Environment: "development",
		LLM: config.LLMConfig{
			Location: "europe-west4",
			Model:    "gemini-2.0-flash-001",
			Timeout:  time.Second,
		},
		Embedding: config.EmbeddingConfig{
			Mode:           config.EmbeddingModeLocal,
			LocalDimension: 64,
			RemoteWeight:   0.5,
			LocalWeight:    0.5,
		},
		Telemetry: config.TelemetryConfig{
			DriftThreshold:     0.2,
			LatencyThresholdMs: 2000,
			CaseCooldown:       time.Minute,
			DriftSmoothing:     0.3,
			DriftHistoryCap:    10,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return SetupRoutes(deps)
}

func TestRoutes_Health(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_Metrics(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_SessionsEmpty(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_UnknownEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, rec.Body.String())
}

func TestRoutes_ChatValidation(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
