package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	path   string
	header http.Header
	body   map[string]interface{}
	list   []interface{}
}

func datadogTestServer(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{path: r.URL.Path, header: r.Header.Clone()}

		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		if raw[0] == '[' {
			require.NoError(t, json.Unmarshal(raw, &rec.list))
		} else {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}

		mu.Lock()
		recorded = append(recorded, rec)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)
	return server, &recorded
}

func TestDatadogBackend_Metric(t *testing.T) {
	server, recorded := datadogTestServer(t)
	b := newDatadogBackendForTest(server.URL, server.URL, "api-key", "", zap.NewNop())

	event := models.NewTelemetryEvent(models.EventKindMetric, "llm.latency_ms",
		map[string]interface{}{"value": 123.0, "session_id": "s1"}, time.Unix(1700000000, 0))
	require.NoError(t, b.Ship(context.Background(), event))

	require.Len(t, *recorded, 1)
	rec := (*recorded)[0]
	assert.Equal(t, "/api/v2/series", rec.path)
	assert.Equal(t, "api-key", rec.header.Get("DD-API-KEY"))

	series := rec.body["series"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "llm.latency_ms", series["metric"])
	assert.Equal(t, float64(ddGaugeType), series["type"])
	point := series["points"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1700000000), point["timestamp"])
	assert.Equal(t, 123.0, point["value"])
	assert.Contains(t, series["tags"], "session_id:s1")
}

func TestDatadogBackend_Event(t *testing.T) {
	server, recorded := datadogTestServer(t)
	b := newDatadogBackendForTest(server.URL, server.URL, "api-key", "", zap.NewNop())

	event := models.NewTelemetryEvent(models.EventKindEvent, "drift.detected",
		map[string]interface{}{"session_id": "s1"}, time.Now())
	require.NoError(t, b.Ship(context.Background(), event))

	require.Len(t, *recorded, 1)
	rec := (*recorded)[0]
	assert.Equal(t, "/api/v1/events", rec.path)
	assert.Equal(t, "drift.detected", rec.body["title"])
}

func TestDatadogBackend_Case(t *testing.T) {
	server, recorded := datadogTestServer(t)
	b := newDatadogBackendForTest(server.URL, server.URL, "api-key", "app-key", zap.NewNop())

	event := models.NewTelemetryEvent(models.EventKindCase, "drift.threshold_breach",
		map[string]interface{}{"title": "drift breach for session s1"}, time.Now())
	require.NoError(t, b.Ship(context.Background(), event))

	require.Len(t, *recorded, 1)
	rec := (*recorded)[0]
	assert.Equal(t, "/api/v2/cases", rec.path)
	assert.Equal(t, "app-key", rec.header.Get("DD-APPLICATION-KEY"))

	data := rec.body["data"].(map[string]interface{})
	attrs := data["attributes"].(map[string]interface{})
	assert.Equal(t, "drift breach for session s1", attrs["title"])
}

func TestDatadogBackend_CaseWithoutAppKey(t *testing.T) {
	server, recorded := datadogTestServer(t)
	b := newDatadogBackendForTest(server.URL, server.URL, "api-key", "", zap.NewNop())

	event := models.NewTelemetryEvent(models.EventKindCase, "drift.threshold_breach", nil, time.Now())
	err := b.Ship(context.Background(), event)
	require.Error(t, err)
	assert.True(t, services.IsExportError(err))
	assert.Empty(t, *recorded)
}

func TestDatadogBackend_Log(t *testing.T) {
	server, recorded := datadogTestServer(t)
	b := newDatadogBackendForTest(server.URL, server.URL, "api-key", "", zap.NewNop())

	event := models.NewTelemetryEvent(models.EventKindLog, "chat.request",
		map[string]interface{}{"session_id": "s1", "text": "hello"}, time.Now())
	require.NoError(t, b.Ship(context.Background(), event))

	require.Len(t, *recorded, 1)
	rec := (*recorded)[0]
	assert.Equal(t, "/api/v2/logs", rec.path)
	require.Len(t, rec.list, 1)
	entry := rec.list[0].(map[string]interface{})
	assert.Equal(t, "chat.request", entry["message"])
	assert.Equal(t, "hello", entry["text"])
	assert.Equal(t, serviceName, entry["ddsource"])
}

func TestDatadogBackend_RejectedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["forbidden"]}`, http.StatusForbidden)
	}))
	defer server.Close()
	b := newDatadogBackendForTest(server.URL, server.URL, "bad-key", "", zap.NewNop())

	err := b.Ship(context.Background(), metricEvent("x"))
	require.Error(t, err)
	assert.True(t, services.IsExportError(err))
}
