package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts checkout, top-up, and provisioning outcomes.
type PaymentMetrics struct {
	checkouts    *prometheus.CounterVec
	topups       *prometheus.CounterVec
	provisioning *prometheus.HistogramVec
	polls        prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	topups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_reconciliations_total",
		Help: "Top-up reconciliations by provider and outcome.",
	}, []string{"provider", "outcome"})
	provisioning := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provisioning_duration_seconds",
		Help:    "Time spent waiting for a supplier profile.",
		Buckets: []float64{1, 3, 5, 10, 20, 30, 45, 60},
	}, []string{"outcome"})
	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "provisioning_polls_total",
		Help: "Supplier profile poll attempts.",
	})
	reg.MustRegister(checkouts, topups, provisioning, polls)
	return &PaymentMetrics{
		checkouts:    checkouts,
		topups:       topups,
		provisioning: provisioning,
		polls:        polls,
	}
}

// IncCheckout counts one checkout with the given outcome label.
func (m *PaymentMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTopup counts one reconciliation for the provider/outcome pair.
func (m *PaymentMetrics) IncTopup(provider, outcome string) {
	if m == nil || m.topups == nil {
		return
	}
	m.topups.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// ObserveProvisioning records how long the poll loop ran.
func (m *PaymentMetrics) ObserveProvisioning(outcome string, duration time.Duration) {
	if m == nil || m.provisioning == nil {
		return
	}
	m.provisioning.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncPoll counts one supplier poll attempt.
func (m *PaymentMetrics) IncPoll() {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
