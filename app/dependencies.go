package app

import (
	"context"
	"fmt"
	"time"

	"github.com/omniguard/llm-observability/config"
	"github.com/omniguard/llm-observability/handlers"
	"github.com/omniguard/llm-observability/internal/gcp"
	"github.com/omniguard/llm-observability/internal/metrics"
	"github.com/omniguard/llm-observability/internal/providers"
	"github.com/omniguard/llm-observability/internal/providers/vertex"
	"github.com/omniguard/llm-observability/services/chat"
	"github.com/omniguard/llm-observability/services/drift"
	"github.com/omniguard/llm-observability/services/embedding"
	"github.com/omniguard/llm-observability/services/export"
	"github.com/omniguard/llm-observability/services/feedback"
	"github.com/omniguard/llm-observability/services/session"
	"github.com/omniguard/llm-observability/services/telemetry"
	"github.com/omniguard/llm-observability/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Pipeline
	Provider providers.Provider
	Detector *drift.Detector
	Tracker  *session.Tracker
	Exporter export.Exporter
	Chat     *chat.Service
	Feedback *feedback.Service

	// Handlers
	ChatHandler     *handlers.ChatHandler
	SessionHandler  *handlers.SessionHandler
	FeedbackHandler *handlers.FeedbackHandler
	HealthHandler   *handlers.HealthHandler

	asyncExporter *export.AsyncExporter
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	tokens, err := deps.initTokenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCP credentials: %w", err)
	}

	deps.initProvider(cfg, tokens)
	deps.initDrift(cfg, tokens)
	if err := deps.initExporter(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}
	deps.initServices(cfg)
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initTokenSource loads the service account credentials shared by the Vertex
// provider and the remote embedder.
func (d *Dependencies) initTokenSource(cfg *config.Config) (gcp.TokenSource, error) {
	if cfg.LLM.CredentialsFile == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is required in production")
		}
		d.Logger.Warn("no GCP credentials configured, remote calls will fail")
		return gcp.StaticTokenSource(""), nil
	}
	return gcp.NewServiceAccountTokenSource(cfg.LLM.CredentialsFile)
}

func (d *Dependencies) initProvider(cfg *config.Config, tokens gcp.TokenSource) {
	d.Provider = vertex.NewClient(cfg.LLM, tokens, d.Logger)
	d.Logger.Info("initialized LLM provider",
		zap.String("provider", d.Provider.Name()),
		zap.String("model", cfg.LLM.Model))
}

func (d *Dependencies) initDrift(cfg *config.Config, tokens gcp.TokenSource) {
	var remote embedding.Embedder
	if cfg.Embedding.Mode != config.EmbeddingModeLocal {
		remote = embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			ProjectID: cfg.LLM.ProjectID,
			Location:  cfg.LLM.Location,
			Model:     cfg.Embedding.RemoteModel,
			Timeout:   cfg.Embedding.Timeout,
		}, tokens, d.Logger)
	}

	// The local embedder is always wired, even in remote mode, so a remote
	// outage degrades to a local fallback instead of losing the signal.
	local := embedding.NewLocalEmbedder(cfg.Embedding.LocalDimension)

	d.Detector = drift.NewDetector(drift.Options{
		Mode:         cfg.Embedding.Mode,
		Remote:       remote,
		Local:        local,
		RemoteWeight: cfg.Embedding.RemoteWeight,
		LocalWeight:  cfg.Embedding.LocalWeight,
		Smoothing:    cfg.Telemetry.DriftSmoothing,
		HistoryCap:   cfg.Telemetry.DriftHistoryCap,
	}, d.Logger)

	d.Logger.Info("initialized drift detector",
		zap.String("mode", string(cfg.Embedding.Mode)),
		zap.Float64("threshold", cfg.Telemetry.DriftThreshold))
}

func (d *Dependencies) initExporter(cfg *config.Config) error {
	if !cfg.Telemetry.Enabled || cfg.Exporter.APIKey == "" {
		if cfg.Telemetry.Enabled {
			d.Logger.Warn("telemetry enabled but no API key configured, exporting nothing")
		}
		d.Exporter = export.NoopExporter{}
		return nil
	}

	backend := export.NewDatadogBackend(cfg.Exporter, d.Logger)
	async := export.NewAsyncExporter(backend, export.Config{
		BufferSize:  cfg.Exporter.BufferSize,
		WorkerCount: cfg.Exporter.Workers,
		ShipTimeout: cfg.Exporter.Timeout,
	}, d.Metrics, d.Logger)
	if err := async.Start(); err != nil {
		return err
	}

	d.asyncExporter = async
	d.Exporter = async
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Tracker = session.NewTracker(cfg.Telemetry.DriftHistoryCap)
	aggregator := telemetry.NewAggregator(cfg.Telemetry, d.Logger)
	extractor := usage.NewExtractor(usage.NewPricingTable(), d.Logger)

	d.Chat = chat.NewService(
		d.Provider,
		cfg.LLM.Model,
		extractor,
		d.Detector,
		d.Tracker,
		aggregator,
		d.Exporter,
		d.Metrics,
		d.Logger,
	)
	d.Feedback = feedback.NewService(d.Exporter, d.Logger)
}

func (d *Dependencies) initHandlers() {
	d.ChatHandler = handlers.NewChatHandler(d.Chat, d.Logger)
	d.SessionHandler = handlers.NewSessionHandler(d.Tracker, d.Logger)
	d.FeedbackHandler = handlers.NewFeedbackHandler(d.Feedback, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(Version)
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Close gracefully shuts down all dependencies.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.asyncExporter != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.asyncExporter.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop exporter: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
