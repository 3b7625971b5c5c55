package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleetscope"

// Outcome labels for the outcomes counter.
const (
	resultOK      = "ok"
	resultError   = "error"
	resultTimeout = "timeout"
)

// Metrics instruments dispatched commands.
type Metrics struct {
	Outcomes *prometheus.CounterVec
	Duration prometheus.Histogram
	InFlight prometheus.Gauge
	Batches  prometheus.Counter
}

// NewMetrics creates the dispatcher metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Commands completed per host, by result",
		}, []string{"result"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Wall-clock time of one host's command",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Host commands currently running",
		}),
		Batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Dispatch batches started",
		}),
	}
}

func (m *Metrics) observe(result string, d time.Duration) {
	m.Outcomes.WithLabelValues(result).Inc()
	m.Duration.Observe(d.Seconds())
}
