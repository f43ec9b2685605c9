// rent-payments-poc/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Label "service" lets one query compare the api, grpc and sandbox binaries.
	PaymentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "requests_total",
			Help:      "Total payment requests per service",
		},
		[]string{"service", "status", "method"},
	)

	PaymentRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "request_duration_seconds",
			Help:      "Payment request latency per service",
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5,
			},
		},
		[]string{"service", "status"},
	)

	InitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "initiations_total",
			Help:      "Push payment initiations by outcome",
		},
		[]string{"outcome"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "callbacks_total",
			Help:      "Gateway callbacks by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "gateway_call_duration_seconds",
			Help:      "Outbound gateway call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "events_dropped_total",
			Help:      "Resolved-payment events dropped before reaching the broker",
		},
	)

	SweepResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "sweep_records_total",
			Help:      "Stale pending records seen by the sweeper, by action",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(
		PaymentRequestsTotal,
		PaymentRequestDuration,
		InitiationsTotal,
		CallbacksTotal,
		GatewayCallDuration,
		EventsDroppedTotal,
		SweepResolvedTotal,
	)
}

func IncRequest(service, status, method string) {
	PaymentRequestsTotal.WithLabelValues(service, status, method).Inc()
}

func ObserveDuration(service, status string, seconds float64) {
	PaymentRequestDuration.WithLabelValues(service, status).Observe(seconds)
}

func IncInitiation(outcome string) { InitiationsTotal.WithLabelValues(outcome).Inc() }

func IncCallback(outcome string) { CallbacksTotal.WithLabelValues(outcome).Inc() }

func ObserveGatewayCall(op, status string, seconds float64) {
	GatewayCallDuration.WithLabelValues(op, status).Observe(seconds)
}

func IncEventsDropped() { EventsDroppedTotal.Inc() }

func IncSweep(action string) { SweepResolvedTotal.WithLabelValues(action).Inc() }
