package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// DefaultChannel carries broadcasts between relay instances.
	DefaultChannel = "routerws:broadcast"

	transportRedis = "redis"
)

// message is the wire format on the broadcast channel.
type message struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Deliverer receives payloads that arrived from peer instances.
type Deliverer interface {
	Deliver(ctx context.Context, payload json.RawMessage) (int, error)
}

// Fanout relays broadcasts between instances over Redis Pub/Sub. Messages are
// tagged with the publishing instance so an instance never re-delivers its own
// broadcasts.
type Fanout struct {
	client  *goredis.Client
	channel string
	origin  string
	metrics *metrics.FanoutMetrics
}

var _ domain.Fanout = (*Fanout)(nil)

func NewFanout(client *goredis.Client, channel, origin string, m *metrics.FanoutMetrics) *Fanout {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Fanout{
		client:  client,
		channel: channel,
		origin:  origin,
		metrics: m,
	}
}

// Publish sends payload to every other instance.
func (f *Fanout) Publish(ctx context.Context, payload json.RawMessage) error {
	data, err := json.Marshal(message{Origin: f.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode fan-out message: %w", err)
	}

	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		f.metrics.Errors.WithLabelValues(transportRedis, "publish").Inc()
		return fmt.Errorf("failed to publish to %s: %w", f.channel, err)
	}

	f.metrics.Published.WithLabelValues(transportRedis).Inc()
	return nil
}

// Run subscribes to the channel and hands foreign payloads to target until
// ctx is cancelled.
func (f *Fanout) Run(ctx context.Context, target Deliverer) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer func() {
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		f.metrics.Errors.WithLabelValues(transportRedis, "subscribe").Inc()
		return fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}
	slog.Info("Fan-out subscriber started", "channel", f.channel, "origin", f.origin)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.handle(ctx, target, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *Fanout) handle(ctx context.Context, target Deliverer, raw string) {
	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		f.metrics.Errors.WithLabelValues(transportRedis, "decode").Inc()
		slog.Warn("Invalid fan-out message", "channel", f.channel, "error", err)
		return
	}

	if msg.Origin == f.origin {
		return
	}
	f.metrics.Received.WithLabelValues(transportRedis).Inc()

	count, err := target.Deliver(ctx, msg.Payload)
	if err != nil {
		f.metrics.Errors.WithLabelValues(transportRedis, "deliver").Inc()
		slog.Warn("Fan-out payload rejected", "origin", msg.Origin, "error", err)
		return
	}
	slog.Debug("Delivered fan-out payload", "origin", msg.Origin, "recipients", count)
}
