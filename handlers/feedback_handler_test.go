package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services/feedback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type discardExporter struct{}

func (discardExporter) Export([]models.TelemetryEvent) {}

func feedbackRouter(h *FeedbackHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/feedback", h.HandleSubmit)
	r.Get("/api/v1/feedback/{sessionID}", h.HandleSummary)
	return r
}

func TestHandleSubmitFeedback(t *testing.T) {
	svc := feedback.NewService(discardExporter{}, zap.NewNop())
	router := feedbackRouter(NewFeedbackHandler(svc, zap.NewNop()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback",
		bytes.NewBufferString(`{"session_id":"s1","rating":4,"comment":"good"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	summary, err := svc.SessionSummary("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 4, summary.Last)
}

func TestHandleSubmitFeedback_Validation(t *testing.T) {
	svc := feedback.NewService(discardExporter{}, zap.NewNop())
	router := feedbackRouter(NewFeedbackHandler(svc, zap.NewNop()))

	tests := []struct {
		name    string
		payload string
	}{
		{"missing session", `{"rating":4}`},
		{"rating too high", `{"session_id":"s1","rating":6}`},
		{"rating missing", `{"session_id":"s1"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewBufferString(tt.payload))
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleFeedbackSummary(t *testing.T) {
	svc := feedback.NewService(discardExporter{}, zap.NewNop())
	require.NoError(t, svc.Record("s1", 5, ""))
	router := feedbackRouter(NewFeedbackHandler(svc, zap.NewNop()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback/s1", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary feedback.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 5.0, summary.Average, 1e-9)
}

func TestHandleFeedbackSummary_NotFound(t *testing.T) {
	svc := feedback.NewService(discardExporter{}, zap.NewNop())
	router := feedbackRouter(NewFeedbackHandler(svc, zap.NewNop()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback/missing", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
