// Package metrics exposes Prometheus instruments for validation outcomes,
// recorded readings, clock drift and integrity findings.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scrollkeeper"

// Attempt outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeClock    = "clock_rejected"
	OutcomePeriod   = "period_rejected"
	OutcomeRisk     = "risk_rejected"
	OutcomeTampered = "anchor_tampered"
)

type Metrics struct {
	Registry *prometheus.Registry

	// AttemptsTotal counts can-read verdicts. Labels: outcome.
	AttemptsTotal *prometheus.CounterVec
	// ReadingsRecordedTotal counts persisted records. Labels: suspicious.
	ReadingsRecordedTotal *prometheus.CounterVec
	// ClockDriftSeconds observes drift against the anchor.
	ClockDriftSeconds prometheus.Histogram
	// IntegrityIssuesTotal counts audit findings. Labels: kind.
	IntegrityIssuesTotal *prometheus.CounterVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Reading attempts by verdict outcome",
		}, []string{"outcome"}),
		ReadingsRecordedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_recorded_total",
			Help:      "Persisted reading records by suspicious flag",
		}, []string{"suspicious"}),
		ClockDriftSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clock_drift_seconds",
			Help:      "Absolute drift between wall-clock and monotonic elapsed time",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 3600, 86400},
		}),
		IntegrityIssuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_issues_total",
			Help:      "Integrity audit findings by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Recorded(suspicious bool) {
	if m == nil {
		return
	}
	label := "false"
	if suspicious {
		label = "true"
	}
	m.ReadingsRecordedTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveDrift(ms int64) {
	if m == nil {
		return
	}
	m.ClockDriftSeconds.Observe(float64(ms) / 1000)
}

func (m *Metrics) IntegrityIssue(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IntegrityIssuesTotal.WithLabelValues(kind).Add(float64(n))
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
