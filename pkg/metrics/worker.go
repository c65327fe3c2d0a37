package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records batch runs of the background workers.
type WorkerMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_batch_duration_seconds",
		Help:    "Duration of worker batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_batch_success_total",
		Help: "Worker batches that completed without error.",
	}, []string{"worker"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_batch_failure_total",
		Help: "Worker batches that returned an error.",
	}, []string{"worker"})
	reg.MustRegister(duration, success, failure)
	return &WorkerMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// Observe records one batch outcome and its duration.
func (w *WorkerMetrics) Observe(worker string, duration time.Duration, err error) {
	if w == nil || w.duration == nil {
		return
	}
	label := normalizeLabel(worker)
	w.duration.WithLabelValues(label).Observe(duration.Seconds())
	if err != nil {
		w.failure.WithLabelValues(label).Inc()
		return
	}
	w.success.WithLabelValues(label).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
