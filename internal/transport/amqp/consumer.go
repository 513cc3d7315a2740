package amqp

import (
	"context"
	"errors"
	"fmt"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/logger"
)

// ErrPoison marks a message that can never succeed. It is dead-lettered instead of requeued.
var ErrPoison = errors.New("poison message")

// Handler processes one message body. A nil error acks the message.
type Handler func(ctx context.Context, body []byte) error

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Queue    string
	Prefetch int
	Handler  Handler
}

// Consumer reads a queue with manual acknowledgement and resumes after reconnects.
type Consumer struct {
	conn     *Connection
	logger   *zap.Logger
	queue    string
	prefetch int
	handler  Handler
}

// NewConsumer creates a consumer. Prefetch below 1 becomes 1.
func NewConsumer(conn *Connection, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With(zap.String("queue", cfg.Queue)),
		queue:    cfg.Queue,
		prefetch: max(cfg.Prefetch, 1),
		handler:  cfg.Handler,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setup()
		if err != nil {
			c.logger.Error("Failed to start consuming", zap.Error(err))
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("Consumer started", zap.Int("prefetch", c.prefetch))

		if err := c.process(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Deliveries closed, waiting for reconnect", zap.Error(err))
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) awaitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

func (c *Consumer) setup() (<-chan amqp091.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, errors.New("no channel available")
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) process(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle acks on success, dead-letters poison messages and requeues other
// failures once: a redelivered message that fails again is dead-lettered.
func (c *Consumer) handle(ctx context.Context, raw amqp091.Delivery) {
	log := c.logger.With(
		zap.String("message_id", raw.MessageId),
		zap.Uint64("delivery_tag", raw.DeliveryTag),
		zap.Bool("redelivered", raw.Redelivered),
	)
	ctx = logger.ContextWithLogger(ctx, log)

	err := c.handler(ctx, raw.Body)
	switch {
	case err == nil:
		if ackErr := raw.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	case errors.Is(err, ErrPoison):
		log.Error("Rejecting message", zap.Error(err))
		if nackErr := raw.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	default:
		requeue := !raw.Redelivered
		log.Warn("Message handling failed", zap.Bool("requeue", requeue), zap.Error(err))
		if nackErr := raw.Nack(false, requeue); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	}
}
