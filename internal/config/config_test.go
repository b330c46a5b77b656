package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8085", cfg.Server.Address)
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, "http://localhost:9200", cfg.Store.BaseURL)
	assert.Equal(t, []string{"api-training-data", "api-logs-*"}, cfg.Store.Indices)
	assert.Equal(t, "api-anomaly-alerts", cfg.Store.AlertsIndex)
	assert.Equal(t, 10000, cfg.Store.PageSize)
	assert.Equal(t, "models", cfg.Model.Dir)
	assert.Equal(t, 30*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, time.Minute, cfg.Monitor.WindowSize)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.InitialLookback)
	assert.Equal(t, 100, cfg.Monitor.HistoryLimit)
	assert.Equal(t, -0.15, cfg.Alerting.HighSeverityBelow)
	assert.Equal(t, "pulse-monitor.db", cfg.State.Path)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
store:
  baseURL: "http://search.internal:9200"
  indices: ["traffic-*"]
  pageSize: 500
monitor:
  checkInterval: 1m
  windowSize: 5m
alerting:
  highSeverityBelow: -0.25
logging:
  level: debug
  json: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "http://search.internal:9200", cfg.Store.BaseURL)
	assert.Equal(t, []string{"traffic-*"}, cfg.Store.Indices)
	assert.Equal(t, 500, cfg.Store.PageSize)
	assert.Equal(t, time.Minute, cfg.Monitor.CheckInterval)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.WindowSize)
	assert.Equal(t, -0.25, cfg.Alerting.HighSeverityBelow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)

	// Untouched sections keep defaults.
	assert.Equal(t, "api-anomaly-alerts", cfg.Store.AlertsIndex)
	assert.Equal(t, "models", cfg.Model.Dir)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PULSE_MONITOR_STORE_URL", "http://override:9200")
	t.Setenv("PULSE_MONITOR_STORE_INDICES", "left-*, right-*")
	t.Setenv("PULSE_MONITOR_CHECK_INTERVAL", "45s")
	t.Setenv("PULSE_MONITOR_MODEL_DIR", "/srv/models")
	t.Setenv("PULSE_MONITOR_LOG_FORMAT", "json")
	t.Setenv("PULSE_MONITOR_CACHE_ENABLED", "true")
	t.Setenv("PULSE_MONITOR_CACHE_ADDR", "valkey:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://override:9200", cfg.Store.BaseURL)
	assert.Equal(t, []string{"left-*", "right-*"}, cfg.Store.Indices)
	assert.Equal(t, 45*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, "/srv/models", cfg.Model.Dir)
	assert.True(t, cfg.Logging.JSON)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "valkey:6379", cfg.Cache.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	write := func(body string) string {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	_, err := Load(write("store:\n  pageSize: 0\n"))
	assert.Error(t, err)

	_, err = Load(write("monitor:\n  checkInterval: -5s\n"))
	assert.Error(t, err)

	_, err = Load(write("monitor:\n  windowSize: 0s\n"))
	assert.Error(t, err)
}
