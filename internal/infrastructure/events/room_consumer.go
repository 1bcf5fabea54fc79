package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/contracts"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

var routingKeyToEvent = map[string]domain.RoomEventType{
	contracts.EventRoomCreated:    domain.EventRoomCreated,
	contracts.EventRoomDestroyed:  domain.EventRoomDestroyed,
	contracts.EventRoomExpired:    domain.EventRoomExpired,
	contracts.EventMemberAdmitted: domain.EventMemberAdmitted,
	contracts.EventRoomFull:       domain.EventRoomFull,
	contracts.EventTTLExtended:    domain.EventTTLExtended,
}

// RoomConsumer writes every room lifecycle event to the audit log.
type RoomConsumer struct {
	rabbitmq *messaging.RabbitMQ
	audit    domain.RoomAuditRepository
	logger   logging.Logger
}

func NewRoomConsumer(rabbitmq *messaging.RabbitMQ, audit domain.RoomAuditRepository, logger logging.Logger) *RoomConsumer {
	return &RoomConsumer{
		rabbitmq: rabbitmq,
		audit:    audit,
		logger:   logger,
	}
}

func (c *RoomConsumer) Listen(ctx context.Context) error {
	return c.rabbitmq.ConsumeMessages(ctx, messaging.RoomsQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		return c.handle(ctx, msg.RoutingKey, msg.Body)
	})
}

func (c *RoomConsumer) handle(ctx context.Context, routingKey string, body []byte) error {
	eventType, ok := routingKeyToEvent[routingKey]
	if !ok {
		return fmt.Errorf("unknown routing key %q", routingKey)
	}

	var message contracts.AmqpMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var payload messaging.RoomEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	entry := domain.NewRoomAuditLog(payload.RoomID, eventType, payload.Metadata)
	if !payload.OccurredAt.IsZero() {
		entry.Timestamp = payload.OccurredAt
	}

	if err := c.audit.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	c.logger.Debug(logging.RabbitMQ, logging.AuditLog, "room event recorded", map[logging.ExtraKey]any{
		logging.RoomID: payload.RoomID,
		logging.Event:  routingKey,
	})

	return nil
}
