package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "routerws"

// Metrics bundles every metric group of the relay on one registry.
type Metrics struct {
	Registry  *prometheus.Registry
	WebSocket *WebSocketMetrics
	Broadcast *BroadcastMetrics
	Fanout    *FanoutMetrics
	HTTP      *HTTPMetrics
}

// New creates a registry with runtime collectors and all relay metric groups.
func New() *Metrics {
	reg := NewRegistry()
	return &Metrics{
		Registry:  reg,
		WebSocket: NewWebSocketMetrics(reg),
		Broadcast: NewBroadcastMetrics(reg),
		Fanout:    NewFanoutMetrics(reg),
		HTTP:      NewHTTPMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
