package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for the broadcast engine.
type BroadcastMetrics struct {
	BroadcastsTotal     *prometheus.CounterVec
	DeliveriesAttempted prometheus.Counter
	DeliveryFailures    *prometheus.CounterVec
	SlowClientsEvicted  prometheus.Counter
	BroadcastDuration   prometheus.Histogram
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts, by scope (fanout or local).",
		}, []string{"scope"}),
		DeliveriesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_attempted_total",
			Help:      "Total number of per-connection delivery attempts.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "delivery_failures_total",
			Help:      "Total number of failed per-connection deliveries, by reason.",
		}, []string{"reason"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of connections evicted because their send buffer was full.",
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "duration_seconds",
			Help:      "Duration of a single broadcast across all connections in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}

	reg.MustRegister(m.BroadcastsTotal, m.DeliveriesAttempted, m.DeliveryFailures, m.SlowClientsEvicted, m.BroadcastDuration)
	return m
}
