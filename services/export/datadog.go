package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/omniguard/llm-observability/config"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services"
	"go.uber.org/zap"
)

const (
	ddGaugeType = 3

	serviceName = "omniguard"
)

// DatadogBackend ships telemetry to Datadog agentless over HTTPS, routing by
// event kind: metrics to the v2 series intake, events to the v1 event
// stream, cases to the v2 case management API, and logs to the log intake.
type DatadogBackend struct {
	apiKey  string
	appKey  string
	apiBase string
	logBase string
	client  *http.Client
	logger  *zap.Logger
}

// NewDatadogBackend creates a Datadog backend for the configured site.
func NewDatadogBackend(cfg config.ExporterConfig, logger *zap.Logger) *DatadogBackend {
	site := cfg.Site
	if site == "" {
		site = "datadoghq.eu"
	}
	return &DatadogBackend{
		apiKey:  cfg.APIKey,
		appKey:  cfg.AppKey,
		apiBase: "https://api." + site,
		logBase: "https://http-intake.logs." + site,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// newDatadogBackendForTest builds a backend pointed at explicit base URLs.
func newDatadogBackendForTest(apiBase, logBase, apiKey, appKey string, logger *zap.Logger) *DatadogBackend {
	return &DatadogBackend{
		apiKey:  apiKey,
		appKey:  appKey,
		apiBase: apiBase,
		logBase: logBase,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

func (b *DatadogBackend) Name() string { return "datadog" }

// Ship routes one event to its intake endpoint.
func (b *DatadogBackend) Ship(ctx context.Context, event models.TelemetryEvent) error {
	switch event.Kind {
	case models.EventKindMetric:
		return b.shipMetric(ctx, event)
	case models.EventKindEvent:
		return b.shipEvent(ctx, event)
	case models.EventKindCase:
		return b.shipCase(ctx, event)
	case models.EventKindLog:
		return b.shipLog(ctx, event)
	default:
		return services.NewDomainError(services.ErrorTypeExport,
			fmt.Sprintf("unknown event kind %q", event.Kind), nil)
	}
}

func (b *DatadogBackend) shipMetric(ctx context.Context, event models.TelemetryEvent) error {
	value, ok := event.FloatAttr("value")
	if !ok {
		return services.NewDomainError(services.ErrorTypeExport, "metric event without numeric value", nil)
	}

	payload := map[string]interface{}{
		"series": []map[string]interface{}{{
			"metric": event.Name,
			"type":   ddGaugeType,
			"points": []map[string]interface{}{{
				"timestamp": event.Timestamp.Unix(),
				"value":     value,
			}},
			"tags": tagsFrom(event.Attributes),
		}},
	}
	return b.post(ctx, b.apiBase+"/api/v2/series", payload, false)
}

func (b *DatadogBackend) shipEvent(ctx context.Context, event models.TelemetryEvent) error {
	payload := map[string]interface{}{
		"title":            event.Name,
		"text":             summarize(event),
		"tags":             tagsFrom(event.Attributes),
		"date_happened":    event.Timestamp.Unix(),
		"source_type_name": serviceName,
	}
	return b.post(ctx, b.apiBase+"/api/v1/events", payload, false)
}

func (b *DatadogBackend) shipCase(ctx context.Context, event models.TelemetryEvent) error {
	if b.appKey == "" {
		return services.NewDomainError(services.ErrorTypeExport, "case creation requires an application key", nil)
	}

	title, _ := event.Attr("title").(string)
	if title == "" {
		title = event.Name
	}
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type": "case",
			"attributes": map[string]interface{}{
				"title":       title,
				"type":        "STANDARD",
				"priority":    "P3",
				"description": summarize(event),
			},
		},
	}
	return b.post(ctx, b.apiBase+"/api/v2/cases", payload, true)
}

func (b *DatadogBackend) shipLog(ctx context.Context, event models.TelemetryEvent) error {
	entry := map[string]interface{}{
		"ddsource": serviceName,
		"service":  serviceName,
		"ddtags":   strings.Join(tagsFrom(event.Attributes), ","),
		"message":  event.Name,
	}
	for k, v := range event.Attributes {
		entry[k] = v
	}
	return b.post(ctx, b.logBase+"/api/v2/logs", []interface{}{entry}, false)
}

func (b *DatadogBackend) post(ctx context.Context, url string, payload interface{}, withAppKey bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeExport, "encoding export payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return services.NewDomainError(services.ErrorTypeExport, "building export request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", b.apiKey)
	if withAppKey {
		req.Header.Set("DD-APPLICATION-KEY", b.appKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeExport, "export request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return services.NewDomainError(services.ErrorTypeExport,
			fmt.Sprintf("backend rejected payload with status %d", resp.StatusCode), services.ErrExportRejected)
	}
	return nil
}

// tagsFrom flattens scalar attributes into sorted "key:value" tags. Nested
// maps and slices are skipped; they belong in log bodies, not tags.
func tagsFrom(attrs map[string]interface{}) []string {
	tags := make([]string, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			tags = append(tags, k+":"+val)
		case bool:
			tags = append(tags, fmt.Sprintf("%s:%t", k, val))
		case int:
			tags = append(tags, fmt.Sprintf("%s:%d", k, val))
		}
	}
	sort.Strings(tags)
	return tags
}

func summarize(event models.TelemetryEvent) string {
	parts := make([]string, 0, len(event.Attributes))
	for k, v := range event.Attributes {
		switch v.(type) {
		case string, bool, int, int64, float64:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	sort.Strings(parts)
	return event.Name + " " + strings.Join(parts, " ")
}
