// Package metrics counts lifecycle operations and collaborator failures and
// can export them as a node_exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds metric naming options.
type Config struct {
	// Namespace is the prefix for all metrics (default: "sbnode")
	Namespace string
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{Namespace: "sbnode"}
}

// Metrics holds the Prometheus collectors.
type Metrics struct {
	registry             *prometheus.Registry
	operationsTotal      *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	users                *prometheus.GaugeVec
}

// New creates Metrics registered on a private registry.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "sbnode"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "operations_total",
				Help:      "Lifecycle operations by name and result.",
			},
			[]string{"op", "result"},
		),
		collaboratorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "collaborator_failures_total",
				Help:      "Failed external collaborator calls.",
			},
			[]string{"collaborator"},
		),
		users: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "users",
				Help:      "Users configured per listener protocol.",
			},
			[]string{"protocol"},
		),
	}
	m.registry.MustRegister(m.operationsTotal, m.collaboratorFailures, m.users)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOperation records one finished operation. result is "ok", "aborted"
// or "error".
func (m *Metrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) CollaboratorFailed(name string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) SetUsers(protocol string, n int) {
	if m == nil {
		return
	}
	m.users.WithLabelValues(protocol).Set(float64(n))
}

// WriteTextfile writes the registry in text exposition format. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
