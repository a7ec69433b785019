package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

func TestLoggerComponentFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "debug").Component("engine").WithSession("abc")

	log.Info("state %s", "Installing")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "abc", line["session_id"])
	assert.Equal(t, "state Installing", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m := NewMetrics(models.MetricsConfig{Enabled: false})
	m.InstallResult(true)
	m.Failure("VersionDowngrade")
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))

	var nilMetrics *Metrics
	nilMetrics.Transition("Ready")
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(models.MetricsConfig{Enabled: true})
	m.InstallResult(true)
	m.InstallResult(true)
	m.InstallResult(false)
	m.TransferBytes("stream", 1024)
	m.TransferBytes("stream", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.results.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("failure")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.transferBytes.WithLabelValues("stream")))

	path := filepath.Join(t.TempDir(), "installerx.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "installerx_install_results_total")
}
