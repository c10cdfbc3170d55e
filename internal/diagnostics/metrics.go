// Package diagnostics implements C8: periodic health, reference,
// avoidance-participation and status publishing, backed by Prometheus
// metrics, rolling tick-duration statistics and OpenTelemetry tracing.
package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Metrics holds the Prometheus collectors for one tracker instance.
type Metrics struct {
	TickDuration        prometheus.Histogram
	IterationsOverLimit *prometheus.CounterVec
	TickDriftRatio      prometheus.Gauge
	AvoidanceActive     prometheus.Gauge
	PeersInRadius       prometheus.Gauge
}

// NewMetrics creates and registers the tracker's metrics against reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mpc_tick_duration_seconds",
			Help:      "Wall-clock duration of one MPC control tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		IterationsOverLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mpc_solver_iterations_over_limit_total",
			Help:      "Count of per-axis MPC solves that exceeded the configured max iteration count.",
		}, []string{"axis"}),
		TickDriftRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mpc_tick_drift_ratio",
			Help:      "Fraction of recorded MPC ticks whose duration exceeded the control period.",
		}),
		AvoidanceActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avoidance_active",
			Help:      "1 if this vehicle is currently avoiding a peer, else 0.",
		}),
		PeersInRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avoidance_peers_in_radius",
			Help:      "Number of peers currently within the avoidance collision radius.",
		}),
	}

	reg.MustRegister(m.TickDuration, m.IterationsOverLimit, m.TickDriftRatio, m.AvoidanceActive, m.PeersInRadius)
	return m
}

// RecordIterationsOverLimit increments the per-axis non-convergence
// counter (error kind 3 of spec.md section 7).
func (m *Metrics) RecordIterationsOverLimit(axis types.Axis) {
	m.IterationsOverLimit.WithLabelValues(axis.String()).Inc()
}
