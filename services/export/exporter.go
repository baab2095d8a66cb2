package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omniguard/llm-observability/internal/metrics"
	"github.com/omniguard/llm-observability/models"
	"go.uber.org/zap"
)

// Exporter ships telemetry events to an observability backend. Export is
// fire-and-forget from the caller's perspective: a full buffer or a backend
// failure never propagates back to the request path.
type Exporter interface {
	Export(events []models.TelemetryEvent)
}

// Backend performs the actual delivery of one event. Implementations are
// responsible for routing by event kind.
type Backend interface {
	Ship(ctx context.Context, event models.TelemetryEvent) error
	Name() string
}

// Config holds the async exporter buffer and worker settings.
type Config struct {
	BufferSize  int
	WorkerCount int
	ShipTimeout time.Duration
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024,
		WorkerCount: 2,
		ShipTimeout: 5 * time.Second,
	}
}

// AsyncExporter drains a bounded buffer of telemetry events with a fixed
// pool of workers. Events are dropped, and counted, when the buffer is full
// or the backend rejects them.
type AsyncExporter struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics

	eventChan   chan models.TelemetryEvent
	workerCount int
	shipTimeout time.Duration
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewAsyncExporter creates an exporter shipping to the given backend.
func NewAsyncExporter(backend Backend, cfg Config, m *metrics.Metrics, logger *zap.Logger) *AsyncExporter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.ShipTimeout <= 0 {
		cfg.ShipTimeout = DefaultConfig().ShipTimeout
	}
	return &AsyncExporter{
		backend:     backend,
		logger:      logger,
		metrics:     m,
		eventChan:   make(chan models.TelemetryEvent, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		shipTimeout: cfg.ShipTimeout,
	}
}

// Start launches the background workers.
func (e *AsyncExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("exporter already started")
	}

	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.started = true
	e.logger.Info("started telemetry exporter",
		zap.String("backend", e.backend.Name()),
		zap.Int("worker_count", e.workerCount),
		zap.Int("buffer_size", cap(e.eventChan)))
	return nil
}

// Stop drains pending events and waits for workers, up to the timeout.
func (e *AsyncExporter) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("exporter not started")
	}
	e.started = false
	e.mu.Unlock()

	e.logger.Info("stopping telemetry exporter", zap.Int("pending_events", len(e.eventChan)))
	close(e.eventChan)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("telemetry exporter stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("exporter stop timeout after %v", timeout)
	}
}

// Export enqueues events without blocking. Events that do not fit in the
// buffer are dropped and counted.
func (e *AsyncExporter) Export(events []models.TelemetryEvent) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return
	}

	for _, event := range events {
		select {
		case e.eventChan <- event:
		default:
			if e.metrics != nil {
				e.metrics.ExportDropped.Inc()
			}
			e.logger.Warn("telemetry buffer full, dropping event",
				zap.String("name", event.Name),
				zap.String("kind", string(event.Kind)))
		}
	}
}

func (e *AsyncExporter) worker(id int) {
	defer e.wg.Done()

	for event := range e.eventChan {
		ctx, cancel := context.WithTimeout(context.Background(), e.shipTimeout)
		err := e.backend.Ship(ctx, event)
		cancel()

		if err != nil {
			if e.metrics != nil {
				e.metrics.ExportFailures.Inc()
			}
			e.logger.Error("failed to ship telemetry event",
				zap.Int("worker_id", id),
				zap.String("name", event.Name),
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
			continue
		}
		if e.metrics != nil {
			e.metrics.ExportedEvents.WithLabelValues(string(event.Kind)).Inc()
		}
	}
}

// NoopExporter discards everything. Used when telemetry is disabled.
type NoopExporter struct{}

func (NoopExporter) Export([]models.TelemetryEvent) {}
