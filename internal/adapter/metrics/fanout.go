package metrics

import "github.com/prometheus/client_golang/prometheus"

// FanoutMetrics holds Prometheus metrics for cross-instance fan-out and queue ingress.
type FanoutMetrics struct {
	Published *prometheus.CounterVec
	Received  *prometheus.CounterVec
	Errors    *prometheus.CounterVec

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState prometheus.Gauge
}

// NewFanoutMetrics creates and registers fan-out metrics on the given registry.
func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	m := &FanoutMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "published_total",
			Help:      "Total number of payloads published to peers, by transport.",
		}, []string{"transport"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "received_total",
			Help:      "Total number of payloads received from peers or queues, by transport.",
		}, []string{"transport"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "errors_total",
			Help:      "Total number of fan-out errors, by transport and operation.",
		}, []string{"transport", "operation"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "redis_circuit_breaker_state",
			Help:      "State of the Redis circuit breaker (0 closed, 1 half-open, 2 open).",
		}),
	}

	reg.MustRegister(m.Published, m.Received, m.Errors, m.BreakerState)
	return m
}
