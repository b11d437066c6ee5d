package planner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for planning cycles.
type Metrics struct {
	JobsDispatched *prometheus.CounterVec
	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
}

// NewMetrics constructs the planner metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_jobs_dispatched_total",
				Help: "Jobs accepted by the queue, by target.",
			},
			[]string{"target"},
		),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_cycles_total",
				Help: "Planning cycles by outcome.",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "planner_cycle_duration_seconds",
				Help:    "Wall time of planning cycles.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.JobsDispatched, m.Cycles, m.CycleDuration)
	return m
}

// AddDispatched counts accepted jobs of target.
func (m *Metrics) AddDispatched(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JobsDispatched.WithLabelValues(target).Add(float64(n))
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Cycles.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
}
