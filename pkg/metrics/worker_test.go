package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWorkerMetrics(reg)
	metrics.Observe("outbox-publisher", 250*time.Millisecond, nil)
	metrics.Observe("outbox-publisher", 10*time.Millisecond, errors.New("pubsub unavailable"))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "worker_batch_success_total", map[string]string{"worker": "outbox-publisher"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)

	got, err = fetchCounterValue(mfs, "worker_batch_failure_total", map[string]string{"worker": "outbox-publisher"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)

	sum, err := fetchHistogramSum(mfs, "worker_batch_duration_seconds", map[string]string{"worker": "outbox-publisher"})
	require.NoError(t, err)
	assert.Greater(t, sum, 0.0)
}

func TestWorkerMetricsNilRegistryIsNoop(t *testing.T) {
	metrics := NewWorkerMetrics(nil)
	assert.NotPanics(t, func() { metrics.Observe("", time.Second, nil) })
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; ok && value == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
