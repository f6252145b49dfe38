// ABOUTME: Prometheus collectors for relay runs: outcomes, relayed frames, active runs, and durations.
package relay

import (
	"github.com/2389-research/storyteller/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storyteller"

// Run outcomes recorded in storyteller_relay_runs_total.
const (
	outcomeCompleted   = "completed"
	outcomeSetupFailed = "setup_failed"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
	outcomeRejected    = "rejected"
	outcomeBadRequest  = "bad_request"
)

// Metrics holds the relay's collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	frames      *prometheus.CounterVec
	activeRuns  prometheus.Gauge
	runDuration prometheus.Histogram
}

// NewMetrics registers the relay collectors with reg. A nil reg gets a
// private registry, which keeps tests from colliding on the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "runs_total",
				Help:      "Total number of relay requests by outcome",
			},
			[]string{"outcome"},
		),
		frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "frames_total",
				Help:      "Total number of engine frames relayed by kind",
			},
			[]string{"kind"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "active_runs",
				Help:      "Number of engine runs currently streaming",
			},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "run_duration_seconds",
				Help:      "Engine run duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
	}
}

// frameLabel bounds label cardinality; engines may send arbitrary types.
func frameLabel(kind engine.FrameKind) string {
	switch kind {
	case engine.KindRunStart, engine.KindCallStart, engine.KindCallProgress,
		engine.KindCallFinish, engine.KindRunFinish:
		return string(kind)
	default:
		return "other"
	}
}
