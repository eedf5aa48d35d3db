package observability

import (
	"testing"

	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDisablesExportWithoutCollector(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "")

	cfg := LoadConfig(config.Config{AppName: "carebill", Environment: "production"})
	assert.False(t, cfg.TracesEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.False(t, cfg.Debug())
	assert.Equal(t, 100, cfg.LogSamplingInitial)
}

func TestLoadConfigPerSignalSwitches(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("OTEL_METRICS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadConfig(config.Config{})
	assert.Equal(t, "carebill", cfg.ServiceName)
	assert.True(t, cfg.TracesEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.Debug())
}
