package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, EmbeddingModeHybrid, cfg.Embedding.Mode)
	assert.Equal(t, 256, cfg.Embedding.LocalDimension)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.2, cfg.Telemetry.DriftThreshold)
	assert.Equal(t, 2000.0, cfg.Telemetry.LatencyThresholdMs)
	assert.Equal(t, 5*time.Minute, cfg.Telemetry.CaseCooldown)
	assert.Equal(t, 50, cfg.Telemetry.DriftHistoryCap)
	assert.Equal(t, "datadoghq.eu", cfg.Exporter.Site)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("OMNIGUARD_EMBEDDING_MODE", "local")
	t.Setenv("OMNIGUARD_DRIFT_THRESHOLD", "0.45")
	t.Setenv("OMNIGUARD_TELEMETRY_ENABLED", "false")
	t.Setenv("OMNIGUARD_CASE_COOLDOWN", "90s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, EmbeddingModeLocal, cfg.Embedding.Mode)
	assert.Equal(t, 0.45, cfg.Telemetry.DriftThreshold)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Telemetry.CaseCooldown)
}

func TestNew_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("OMNIGUARD_DRIFT_THRESHOLD", "abc")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.2, cfg.Telemetry.DriftThreshold)
}

func TestValidate(t *testing.T) {
	t.Run("invalid embedding mode", func(t *testing.T) {
		t.Setenv("OMNIGUARD_EMBEDDING_MODE", "quantum")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("invalid smoothing factor", func(t *testing.T) {
		t.Setenv("OMNIGUARD_DRIFT_SMOOTHING", "1.5")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("production requires project ID", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("OMNIGUARD_TELEMETRY_ENABLED", "false")
		_, err := New()
		assert.Error(t, err)
	})

	t.Run("production requires exporter key when telemetry enabled", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("OMNIGUARD_GCP_PROJECT_ID", "proj-1")
		t.Setenv("DD_API_KEY", "")
		_, err := New()
		assert.Error(t, err)
	})
}

func TestServerConfig_Address(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", sc.Address())
}
