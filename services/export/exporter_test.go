package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omniguard/llm-observability/internal/metrics"
	"github.com/omniguard/llm-observability/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureBackend records shipped events and optionally fails.
type captureBackend struct {
	mu      sync.Mutex
	shipped []models.TelemetryEvent
	fail    bool
	block   chan struct{}
}

func (b *captureBackend) Name() string { return "capture" }

func (b *captureBackend) Ship(ctx context.Context, event models.TelemetryEvent) error {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.fail {
		return errors.New("backend down")
	}
	b.mu.Lock()
	b.shipped = append(b.shipped, event)
	b.mu.Unlock()
	return nil
}

func (b *captureBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shipped)
}

func metricEvent(name string) models.TelemetryEvent {
	return models.NewTelemetryEvent(models.EventKindMetric, name,
		map[string]interface{}{"value": 1.0}, time.Now())
}

func TestAsyncExporter_ShipsEvents(t *testing.T) {
	backend := &captureBackend{}
	e := NewAsyncExporter(backend, DefaultConfig(), metrics.New(), zap.NewNop())
	require.NoError(t, e.Start())

	e.Export([]models.TelemetryEvent{metricEvent("a"), metricEvent("b")})

	require.NoError(t, e.Stop(2*time.Second))
	assert.Equal(t, 2, backend.count())
}

func TestAsyncExporter_StartTwice(t *testing.T) {
	e := NewAsyncExporter(&captureBackend{}, DefaultConfig(), nil, zap.NewNop())
	require.NoError(t, e.Start())
	assert.Error(t, e.Start())
	require.NoError(t, e.Stop(time.Second))
}

func TestAsyncExporter_ExportBeforeStartIsNoop(t *testing.T) {
	backend := &captureBackend{}
	e := NewAsyncExporter(backend, DefaultConfig(), nil, zap.NewNop())

	e.Export([]models.TelemetryEvent{metricEvent("a")})
	assert.Zero(t, backend.count())
}

func TestAsyncExporter_FullBufferDropsWithoutBlocking(t *testing.T) {
	backend := &captureBackend{block: make(chan struct{})}
	cfg := Config{BufferSize: 1, WorkerCount: 1, ShipTimeout: time.Second}
	e := NewAsyncExporter(backend, cfg, metrics.New(), zap.NewNop())
	require.NoError(t, e.Start())

	done := make(chan struct{})
	go func() {
		// Far more events than the buffer holds; Export must return anyway.
		for i := 0; i < 100; i++ {
			e.Export([]models.TelemetryEvent{metricEvent("x")})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Export blocked on a full buffer")
	}

	close(backend.block)
	require.NoError(t, e.Stop(2*time.Second))
}

func TestAsyncExporter_BackendFailureIsAbsorbed(t *testing.T) {
	backend := &captureBackend{fail: true}
	e := NewAsyncExporter(backend, DefaultConfig(), metrics.New(), zap.NewNop())
	require.NoError(t, e.Start())

	// Must not panic or surface the failure to the caller.
	e.Export([]models.TelemetryEvent{metricEvent("a")})
	require.NoError(t, e.Stop(2*time.Second))
}

func TestNoopExporter(t *testing.T) {
	assert.NotPanics(t, func() {
		NoopExporter{}.Export([]models.TelemetryEvent{metricEvent("a")})
	})
}
