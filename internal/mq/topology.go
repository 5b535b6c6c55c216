package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Топология событий регистрации.
const (
	// ExchangeWorkflows — topic exchange событий workflow.
	ExchangeWorkflows = "dagfactory.workflows"

	// QueueWorkflowsRegistered — очередь событий о новых версиях.
	QueueWorkflowsRegistered = "workflows.registered"

	// RoutingKeyRegistered — ключ события о новой версии workflow.
	RoutingKeyRegistered = "workflow.registered"
)

// SetupTopology объявляет exchange, очередь и привязку.
// Повторный вызов безопасен.
func SetupTopology(ctx context.Context, runner ChannelRunner) error {
	return runner.WithChannel(ctx, func(ch Channel) error {
		if err := ch.ExchangeDeclare(
			ExchangeWorkflows, // name
			"topic",           // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeWorkflows, err)
		}

		if _, err := ch.QueueDeclare(
			QueueWorkflowsRegistered, // name
			true,                     // durable
			false,                    // delete when unused
			false,                    // exclusive
			false,                    // no-wait
			amqp.Table{"x-queue-type": "classic"},
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueWorkflowsRegistered, err)
		}

		if err := ch.QueueBind(
			QueueWorkflowsRegistered,
			RoutingKeyRegistered,
			ExchangeWorkflows,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueWorkflowsRegistered, ExchangeWorkflows, err)
		}

		return nil
	})
}
