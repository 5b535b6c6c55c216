package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// MessageType — тип сообщения.
type MessageType string

// MessageTypeWorkflowRegistered — зарегистрирована новая версия workflow.
const MessageTypeWorkflowRegistered MessageType = "workflow.registered"

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// WorkflowRegisteredPayload — payload события о новой версии workflow.
type WorkflowRegisteredPayload struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	Checksum   string    `json:"checksum"`
	Tasks      int       `json:"tasks"`
}

// Publisher публикует события в брокер.
type Publisher struct {
	runner ChannelRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(runner ChannelRunner, logger *slog.Logger) *Publisher {
	return &Publisher{
		runner: runner,
		logger: telemetry.OrDefault(logger),
		now:    time.Now,
	}
}

// Publish публикует сообщение с типом msgType и payload в JSON.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msgType MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: p.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.runner.WithChannel(ctx, func(ch Channel) error {
		if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		}); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishWorkflowRegistered публикует событие о новой версии workflow.
func (p *Publisher) PublishWorkflowRegistered(ctx context.Context, reg *domain.Registration, tasks int) error {
	return p.Publish(ctx, ExchangeWorkflows, RoutingKeyRegistered, MessageTypeWorkflowRegistered,
		WorkflowRegisteredPayload{
			WorkflowID: reg.WorkflowID,
			Name:       reg.Name,
			Version:    reg.Version,
			Checksum:   reg.Checksum,
			Tasks:      tasks,
		})
}

// ParsePayload декодирует payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return result, nil
}
