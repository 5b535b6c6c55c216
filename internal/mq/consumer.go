package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dagfactory/internal/telemetry"
)

// Handler обрабатывает сообщение. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, msg *Message) error

// Consumer читает сообщения из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue    string
	Handler  Handler
	Prefetch int // default: 1
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		logger:   telemetry.OrDefault(logger).With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run читает сообщения до отмены ctx.
// После разрыва соединения ждёт переподключения и продолжает.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(ctx, func(ch Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		d, err := ch.Consume(c.queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		deliveries = d
		return nil
	})
	return deliveries, err
}

// drain обрабатывает сообщения, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}
			c.handle(ctx, raw)
		}
	}
}

// handle декодирует сообщение и вызывает обработчик.
// Нечитаемое сообщение отклоняется без возврата в очередь.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err)
		_ = raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.Error("handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		_ = raw.Nack(false, true)
		return
	}
	_ = raw.Ack(false)
}
