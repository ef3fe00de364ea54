package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "readings_queue", cfg.ReadingsQueue)
	assert.Equal(t, "heartbeats_queue", cfg.HeartbeatsQueue)
	assert.Equal(t, 300, cfg.AlertCooldownSeconds)
	assert.Equal(t, 60, cfg.SweepIntervalSeconds)
	assert.Equal(t, 1.5, cfg.ToleranceFactor)
	assert.Equal(t, 300, cfg.DefaultHeartbeatIntervalSeconds)
	assert.Equal(t, 2.0, cfg.DefaultTempMin)
	assert.Equal(t, 8.0, cfg.DefaultTempMax)
	assert.Equal(t, 8, cfg.DispatchConcurrency)
	assert.Equal(t, 4, cfg.IngestWorkers)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ALERT_COOLDOWN_SECONDS", "120")
	t.Setenv("LIVENESS_TOLERANCE_FACTOR", "2.0")
	t.Setenv("READINGS_QUEUE", "custom_readings")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.AlertCooldownSeconds)
	assert.Equal(t, 2.0, cfg.ToleranceFactor)
	assert.Equal(t, "custom_readings", cfg.ReadingsQueue)
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ALERT_COOLDOWN_SECONDS", "not-a-number")
	t.Setenv("LIVENESS_TOLERANCE_FACTOR", "also-bad")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.AlertCooldownSeconds)
	assert.Equal(t, 1.5, cfg.ToleranceFactor)
}
