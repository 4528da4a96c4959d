package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
	"github.com/pscheid92/routerws/internal/registry"
)

const (
	scopeFanout = "fanout"
	scopeLocal  = "local"
)

var _ domain.Broadcaster = (*Engine)(nil)

// Engine delivers payloads to the connections of a Registry.
type Engine struct {
	registry *registry.Registry
	clock    domain.Clock
	fanout   domain.Fanout
	metrics  *metrics.BroadcastMetrics
}

// NewEngine creates a broadcast engine.
// fanout may be nil when the relay runs as a single instance.
func NewEngine(reg *registry.Registry, clock domain.Clock, fanout domain.Fanout, m *metrics.BroadcastMetrics) *Engine {
	return &Engine{
		registry: reg,
		clock:    clock,
		fanout:   fanout,
		metrics:  m,
	}
}

// Broadcast delivers payload to every local connection and then forwards it to
// peer instances. It returns the number of local connections attempted; a
// fan-out failure is logged and does not change the result.
func (e *Engine) Broadcast(ctx context.Context, payload json.RawMessage) (int, error) {
	attempted, err := e.deliver(ctx, payload, scopeFanout)
	if err != nil {
		return 0, err
	}

	if e.fanout != nil {
		if err := e.fanout.Publish(ctx, payload); err != nil {
			slog.WarnContext(ctx, "Fan-out publish failed", "error", err)
		}
	}

	return attempted, nil
}

// Deliver reaches only the connections of this instance.
func (e *Engine) Deliver(ctx context.Context, payload json.RawMessage) (int, error) {
	return e.deliver(ctx, payload, scopeLocal)
}

func (e *Engine) deliver(ctx context.Context, payload json.RawMessage, scope string) (int, error) {
	if err := ValidatePayload(payload); err != nil {
		return 0, err
	}

	envelope := domain.NewEnvelope(domain.EnvelopeBroadcast, payload, e.clock.Snapshot())
	data, err := json.Marshal(envelope)
	if err != nil {
		return 0, fmt.Errorf("marshal broadcast envelope: %w", err)
	}

	start := time.Now()
	connections := e.registry.Snapshot()

	var slow []*registry.Connection
	failed := 0
	for _, conn := range connections {
		err := conn.Send(data)
		if err == nil {
			continue
		}

		failed++
		if errors.Is(err, domain.ErrSendBufferFull) {
			e.metrics.DeliveryFailures.WithLabelValues("buffer_full").Inc()
			slow = append(slow, conn)
			continue
		}
		e.metrics.DeliveryFailures.WithLabelValues("closed").Inc()
		slog.DebugContext(ctx, "Delivery skipped", "connection_id", conn.ID().String(), "error", err)
	}

	for _, conn := range slow {
		slog.WarnContext(ctx, "Disconnecting slow client", "connection_id", conn.ID().String(), "remote_addr", conn.RemoteAddr())
		e.metrics.SlowClientsEvicted.Inc()
		e.registry.Deregister(conn)
	}

	e.metrics.BroadcastsTotal.WithLabelValues(scope).Inc()
	e.metrics.DeliveriesAttempted.Add(float64(len(connections)))
	e.metrics.BroadcastDuration.Observe(time.Since(start).Seconds())

	slog.InfoContext(ctx, "Broadcast delivered",
		"scope", scope,
		"attempted", len(connections),
		"failed", failed,
	)
	return len(connections), nil
}
