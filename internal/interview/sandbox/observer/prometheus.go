package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports sandbox metrics through a Prometheus registerer.
type PrometheusRecorder struct {
	runs      *prometheus.CounterVec
	wallTime  *prometheus.HistogramVec
	memory    *prometheus.HistogramVec
	queueWait *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

// NewPrometheusRecorder registers the sandbox collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arete",
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Total number of sandbox executions by verdict",
		}, []string{"problem", "verdict"}),
		wallTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arete",
			Subsystem: "sandbox",
			Name:      "wall_time_seconds",
			Help:      "Wall clock duration of sandbox executions",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"verdict"}),
		memory: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arete",
			Subsystem: "sandbox",
			Name:      "max_rss_bytes",
			Help:      "Peak resident memory of sandbox executions",
			Buckets:   prometheus.ExponentialBuckets(8<<20, 2, 7),
		}, []string{"verdict"}),
		queueWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arete",
			Subsystem: "sandbox",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for a sandbox slot",
			Buckets:   prometheus.DefBuckets,
		}, []string{"admitted"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arete",
			Subsystem: "sandbox",
			Name:      "in_flight",
			Help:      "Current number of running sandbox executions",
		}),
	}
}

func (r *PrometheusRecorder) ObserveRun(_ context.Context, problemID, verdict string, wallTimeMs int64, memoryKB int64) {
	r.runs.WithLabelValues(problemID, verdict).Inc()
	r.wallTime.WithLabelValues(verdict).Observe(float64(wallTimeMs) / 1000)
	if memoryKB > 0 {
		r.memory.WithLabelValues(verdict).Observe(float64(memoryKB) * 1024)
	}
}

func (r *PrometheusRecorder) ObserveQueueWait(_ context.Context, wait time.Duration, admitted bool) {
	label := "true"
	if !admitted {
		label = "false"
	}
	r.queueWait.WithLabelValues(label).Observe(wait.Seconds())
}

func (r *PrometheusRecorder) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}
