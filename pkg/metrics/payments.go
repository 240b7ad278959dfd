package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts confirmation and callback outcomes and observes
// gateway latency.
type PaymentMetrics struct {
	outcomes *prometheus.CounterVec
	gateway  *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment confirmation and callback outcomes by flow and result code.",
	}, []string{"flow", "outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation", "outcome"})
	reg.MustRegister(outcomes, gateway)
	return &PaymentMetrics{outcomes: outcomes, gateway: gateway}
}

// IncOutcome counts one processed request for the flow.
func (p *PaymentMetrics) IncOutcome(flow, outcome string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall satisfies toss.Observer.
func (p *PaymentMetrics) ObserveGatewayCall(operation, outcome string, elapsed time.Duration) {
	if p == nil || p.gateway == nil {
		return
	}
	p.gateway.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(elapsed.Seconds())
}
