package recon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-run counters on a private registry so several
// services can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	ports       prometheus.Gauge
	verdicts    *prometheus.GaugeVec
}

// NewMetrics registers the fwrecon collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwrecon",
			Name:      "probe_invocations_total",
			Help:      "Probe engine invocations by profile and outcome.",
		}, []string{"profile", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fwrecon",
			Name:      "probe_duration_seconds",
			Help:      "Wall-clock duration of probe engine invocations.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"profile"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwrecon",
			Name:      "runs_total",
			Help:      "Finished runs by status.",
		}, []string{"status"}),
		ports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fwrecon",
			Name:      "ports_probed",
			Help:      "Size of the port set of the last run.",
		}),
		verdicts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fwrecon",
			Name:      "verdicts",
			Help:      "Ports per classification in the last run.",
		}, []string{"classification"}),
	}
	m.registry.MustRegister(m.invocations, m.duration, m.runs, m.ports, m.verdicts)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeProbe(prof, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(prof, outcome).Inc()
	m.duration.WithLabelValues(prof).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRun(report *RunReport) {
	if m == nil || report == nil {
		return
	}
	m.runs.WithLabelValues(string(report.Status)).Inc()
	m.ports.Set(float64(len(report.Ports)))
	m.verdicts.Reset()
	for class, n := range report.ClassificationCounts() {
		m.verdicts.WithLabelValues(string(class)).Set(float64(n))
	}
}
