package planner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"globetrotter/libs/apperr"
)

type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	copiedStops prometheus.Histogram
}

// NewMetrics registers the planner collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_operations_total",
			Help: "Planner operations by outcome.",
		}, []string{"op", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_operation_duration_seconds",
			Help:    "Planner operation latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		copiedStops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_copied_stops",
			Help:    "Stops per copied trip.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
	}
}

func (m *Metrics) observe(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = apperr.KindOf(err).String()
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) observeCopy(stops int) {
	if m == nil {
		return
	}
	m.copiedStops.Observe(float64(stops))
}
