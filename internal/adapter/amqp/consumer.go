// Package amqp feeds broadcasts from a RabbitMQ queue into the relay.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
	"github.com/pscheid92/routerws/internal/platform/retry"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	transportAMQP  = "amqp"
	consumerTag    = "routerws"
	prefetchCount  = 16
	reconnectDelay = 5 * time.Second
)

var (
	errNotConnected   = errors.New("not connected to RabbitMQ")
	errDeliveriesDone = errors.New("delivery channel closed")
)

// Submitter accepts payloads for broadcasting.
type Submitter interface {
	Broadcast(ctx context.Context, payload json.RawMessage) (int, error)
}

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	MaxBackoff:     5 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Failed to connect to RabbitMQ, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// Connect dials url, retrying transient failures.
func Connect(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := retry.Do(ctx, connectPolicy, nil, func(context.Context) (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// Consumer reads payloads from a durable queue and broadcasts each one.
// Invalid payloads are rejected without requeue; transient broadcast failures
// are requeued.
type Consumer struct {
	clock   clockwork.Clock
	url     string
	queue   string
	target  Submitter
	metrics *metrics.FanoutMetrics
	dial    func(ctx context.Context, url string) (*amqp.Connection, error)

	conn atomic.Pointer[amqp.Connection]
}

func NewConsumer(clock clockwork.Clock, url, queue string, target Submitter, m *metrics.FanoutMetrics) *Consumer {
	return &Consumer{
		clock:   clock,
		url:     url,
		queue:   queue,
		target:  target,
		metrics: m,
		dial:    Connect,
	}
}

// Run consumes until ctx is cancelled, reconnecting when the broker drops the
// connection.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var permanent *retry.PermanentError
		if errors.As(err, &permanent) {
			return err
		}

		c.metrics.Errors.WithLabelValues(transportAMQP, "consume").Inc()
		slog.Warn("RabbitMQ consumer stopped, reconnecting", "queue", c.queue, "error", err, "delay", reconnectDelay)

		select {
		case <-c.clock.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// Healthy reports whether the consumer currently holds an open connection.
func (c *Consumer) Healthy(context.Context) error {
	conn := c.conn.Load()
	if conn == nil || conn.IsClosed() {
		return errNotConnected
	}
	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return err
	}
	c.conn.Store(conn)
	defer func() {
		c.conn.Store(nil)
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", c.queue, err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		q.Name,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	slog.Info("RabbitMQ consumer started", "queue", q.Name)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesDone
			}
			c.handle(ctx, d)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	c.metrics.Received.WithLabelValues(transportAMQP).Inc()

	count, err := c.target.Broadcast(ctx, d.Body)
	switch {
	case errors.Is(err, domain.ErrEmptyPayload), errors.Is(err, domain.ErrInvalidPayload):
		c.metrics.Errors.WithLabelValues(transportAMQP, "invalid").Inc()
		slog.Warn("Discarding invalid queue message", "queue", c.queue, "error", err)
		if err := d.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}
	case err != nil:
		c.metrics.Errors.WithLabelValues(transportAMQP, "broadcast").Inc()
		slog.Error("Failed to broadcast queue message", "queue", c.queue, "error", err)
		if err := d.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}
	default:
		slog.Debug("Broadcast queue message", "queue", c.queue, "recipients", count)
		if err := d.Ack(false); err != nil {
			slog.Error("Failed to ack message", "error", err)
		}
	}
}
