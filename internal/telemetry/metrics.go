package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

const namespace = "installerx"

// Metrics holds the engine counters. A Metrics built from a disabled config
// or a nil *Metrics accepts every call and records nothing.
type Metrics struct {
	sessions      *prometheus.CounterVec
	results       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	transferBytes *prometheus.CounterVec
	transitions   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry
func NewMetrics(cfg models.MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Sessions by terminal outcome",
			},
			[]string{"outcome"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "install_results_total",
				Help:      "Per-entity install results",
			},
			[]string{"result"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Classified failures by type",
			},
			[]string{"type"},
		),
		transferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Bytes moved while staging sources",
			},
			[]string{"primitive"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Session state transitions by target state",
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(m.sessions, m.results, m.failures, m.transferBytes, m.transitions)
	return m
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the private registry, nil when disabled
func (m *Metrics) Registry() *prometheus.Registry {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// SessionFinished counts a session that reached a terminal state
func (m *Metrics) SessionFinished(outcome string) {
	if m.enabled() {
		m.sessions.WithLabelValues(outcome).Inc()
	}
}

// InstallResult counts one entity result
func (m *Metrics) InstallResult(success bool) {
	if !m.enabled() {
		return
	}
	label := "failure"
	if success {
		label = "success"
	}
	m.results.WithLabelValues(label).Inc()
}

// Failure counts a classified failure
func (m *Metrics) Failure(failureType string) {
	if m.enabled() {
		m.failures.WithLabelValues(failureType).Inc()
	}
}

// TransferBytes adds staged bytes for a primitive ("stream" or "zero_copy")
func (m *Metrics) TransferBytes(primitive string, n int64) {
	if m.enabled() && n > 0 {
		m.transferBytes.WithLabelValues(primitive).Add(float64(n))
	}
}

// Transition counts a state change
func (m *Metrics) Transition(state string) {
	if m.enabled() {
		m.transitions.WithLabelValues(state).Inc()
	}
}

// WriteTextfile dumps the registry in text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if !m.enabled() || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
