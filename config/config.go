package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EmbeddingMode selects which embedding backends the drift detector uses.
type EmbeddingMode string

const (
	EmbeddingModeRemote EmbeddingMode = "remote"
	EmbeddingModeLocal  EmbeddingMode = "local"
	EmbeddingModeHybrid EmbeddingMode = "hybrid"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	LLM           LLMConfig
	Embedding     EmbeddingConfig
	Telemetry     TelemetryConfig
	Exporter      ExporterConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LLMConfig holds the Vertex AI provider configuration
type LLMConfig struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string // service account JSON key path
	Timeout         time.Duration
}

// EmbeddingConfig holds embedding backend configuration
type EmbeddingConfig struct {
	Mode           EmbeddingMode
	RemoteModel    string  // Vertex embedding model name
	LocalDimension int     // dimension of the in-process embedder
	RemoteWeight   float64 // hybrid score weight for the remote backend
	LocalWeight    float64 // hybrid score weight for the local backend
	Timeout        time.Duration
}

// TelemetryConfig holds the drift/latency pipeline thresholds.
// Each knob is independently settable via environment.
type TelemetryConfig struct {
	Enabled            bool
	DriftThreshold     float64
	LatencyThresholdMs float64
	CaseCooldown       time.Duration
	DriftSmoothing     float64 // EMA smoothing factor for the reference embedding
	DriftHistoryCap    int     // bounded per-session drift score history
}

// ExporterConfig holds the observability backend (Datadog agentless) settings
type ExporterConfig struct {
	APIKey     string
	AppKey     string // required only for case creation
	Site       string // e.g. datadoghq.eu
	Timeout    time.Duration
	BufferSize int
	Workers    int
}

// ObservabilityConfig holds local logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present; env vars always win.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			ProjectID:       getEnv("OMNIGUARD_GCP_PROJECT_ID", ""),
			Location:        getEnv("OMNIGUARD_GCP_LOCATION", "europe-west4"),
			Model:           getEnv("OMNIGUARD_VERTEX_MODEL_NAME", "gemini-2.0-flash-001"),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			Timeout:         getEnvAsDuration("OMNIGUARD_LLM_TIMEOUT", 60*time.Second),
		},
		Embedding: EmbeddingConfig{
			Mode:           EmbeddingMode(getEnv("OMNIGUARD_EMBEDDING_MODE", string(EmbeddingModeHybrid))),
			RemoteModel:    getEnv("OMNIGUARD_EMBEDDING_MODEL", "text-embedding-005"),
			LocalDimension: getEnvAsInt("OMNIGUARD_LOCAL_EMBEDDING_DIM", 256),
			RemoteWeight:   getEnvAsFloat("OMNIGUARD_DRIFT_REMOTE_WEIGHT", 0.5),
			LocalWeight:    getEnvAsFloat("OMNIGUARD_DRIFT_LOCAL_WEIGHT", 0.5),
			Timeout:        getEnvAsDuration("OMNIGUARD_EMBEDDING_TIMEOUT", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:            getEnvAsBool("OMNIGUARD_TELEMETRY_ENABLED", true),
			DriftThreshold:     getEnvAsFloat("OMNIGUARD_DRIFT_THRESHOLD", 0.2),
			LatencyThresholdMs: getEnvAsFloat("OMNIGUARD_LATENCY_THRESHOLD_MS", 2000),
			CaseCooldown:       getEnvAsDuration("OMNIGUARD_CASE_COOLDOWN", 5*time.Minute),
			DriftSmoothing:     getEnvAsFloat("OMNIGUARD_DRIFT_SMOOTHING", 0.3),
			DriftHistoryCap:    getEnvAsInt("OMNIGUARD_DRIFT_HISTORY_CAP", 50),
		},
		Exporter: ExporterConfig{
			APIKey:     getEnv("DD_API_KEY", ""),
			AppKey:     getEnv("DD_APP_KEY", ""),
			Site:       getEnv("DD_SITE", "datadoghq.eu"),
			Timeout:    getEnvAsDuration("DD_EXPORT_TIMEOUT", 5*time.Second),
			BufferSize: getEnvAsInt("DD_EXPORT_BUFFER_SIZE", 1024),
			Workers:    getEnvAsInt("DD_EXPORT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Embedding.Mode {
	case EmbeddingModeRemote, EmbeddingModeLocal, EmbeddingModeHybrid:
	default:
		return fmt.Errorf("invalid embedding mode %q: must be remote, local or hybrid", c.Embedding.Mode)
	}

	if c.Embedding.LocalDimension <= 0 {
		return fmt.Errorf("local embedding dimension must be positive")
	}
	if c.Embedding.RemoteWeight < 0 || c.Embedding.LocalWeight < 0 {
		return fmt.Errorf("hybrid drift weights must be non-negative")
	}
	if c.Embedding.RemoteWeight+c.Embedding.LocalWeight == 0 {
		return fmt.Errorf("at least one hybrid drift weight must be positive")
	}

	if c.Telemetry.DriftThreshold < 0 {
		return fmt.Errorf("drift threshold must be non-negative")
	}
	if c.Telemetry.DriftSmoothing <= 0 || c.Telemetry.DriftSmoothing > 1 {
		return fmt.Errorf("drift smoothing factor must be in (0, 1]")
	}
	if c.Telemetry.DriftHistoryCap <= 0 {
		return fmt.Errorf("drift history cap must be positive")
	}

	if c.IsProduction() {
		if c.LLM.ProjectID == "" {
			return fmt.Errorf("GCP project ID is required in production")
		}
		if c.Telemetry.Enabled && c.Exporter.APIKey == "" {
			return fmt.Errorf("exporter API key is required when telemetry is enabled in production")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
