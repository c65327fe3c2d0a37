package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the order counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// OrderMetrics counts lifecycle activity. A nil receiver is a no-op so
// services can run without a registry in tests.
type OrderMetrics struct {
	transitions  *prometheus.CounterVec
	bulkResults  *prometheus.CounterVec
	inventory    *prometheus.CounterVec
	compensation *prometheus.CounterVec
	payments     *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return nil
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Accepted order status transitions.",
		}, []string{"from", "to"}),
		bulkResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_transition_results_total",
			Help: "Per-order outcomes of bulk status updates.",
		}, []string{"outcome"}),
		inventory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_adjustments_total",
			Help: "Units moved by inventory reconciliation.",
		}, []string{"kind"}),
		compensation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Saga compensation attempts by outcome.",
		}, []string{"saga", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_events_total",
			Help: "Payment outcome events handled by the consumer.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.transitions, m.bulkResults, m.inventory, m.compensation, m.payments)
	return m
}

func (m *OrderMetrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) BulkResult(outcome string) {
	if m == nil {
		return
	}
	m.bulkResults.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// InventoryAdjusted adds units for kind ("reserve", "reduce", "restore", "backorder").
func (m *OrderMetrics) InventoryAdjusted(kind string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.inventory.WithLabelValues(normalizeLabel(kind)).Add(float64(units))
}

func (m *OrderMetrics) Compensation(saga, outcome string) {
	if m == nil {
		return
	}
	m.compensation.WithLabelValues(normalizeLabel(saga), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) PaymentEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
