package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/contracts"
	"github.com/hilthontt/burner/internal/infrastructure/messaging"
)

// RoomEvents announces room lifecycle transitions.
type RoomEvents interface {
	PublishRoomCreated(ctx context.Context, roomID string, ttl time.Duration) error
	PublishRoomDestroyed(ctx context.Context, roomID string, byOwner bool) error
	PublishRoomExpired(ctx context.Context, roomID string) error
	PublishMemberAdmitted(ctx context.Context, roomID string, isOwner bool) error
	PublishRoomFull(ctx context.Context, roomID string) error
	PublishTTLExtended(ctx context.Context, roomID string, ttl time.Duration) error
}

type messagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

type RoomPublisher struct {
	publisher messagePublisher
	now       func() time.Time
}

func NewRoomPublisher(rabbitmq *messaging.RabbitMQ) *RoomPublisher {
	return &RoomPublisher{
		publisher: rabbitmq,
		now:       time.Now,
	}
}

func (p *RoomPublisher) publish(ctx context.Context, routingKey, roomID string, metadata map[string]any) error {
	payload := messaging.RoomEventData{
		RoomID:     roomID,
		OccurredAt: p.now().UTC(),
		Metadata:   metadata,
	}

	roomEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.publisher.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		RoomID: roomID,
		Data:   roomEventJSON,
	})
}

func (p *RoomPublisher) PublishRoomCreated(ctx context.Context, roomID string, ttl time.Duration) error {
	return p.publish(ctx, contracts.EventRoomCreated, roomID, map[string]any{
		"ttlSeconds": int64(ttl.Seconds()),
	})
}

func (p *RoomPublisher) PublishRoomDestroyed(ctx context.Context, roomID string, byOwner bool) error {
	return p.publish(ctx, contracts.EventRoomDestroyed, roomID, map[string]any{
		"byOwner": byOwner,
	})
}

func (p *RoomPublisher) PublishRoomExpired(ctx context.Context, roomID string) error {
	return p.publish(ctx, contracts.EventRoomExpired, roomID, nil)
}

func (p *RoomPublisher) PublishMemberAdmitted(ctx context.Context, roomID string, isOwner bool) error {
	return p.publish(ctx, contracts.EventMemberAdmitted, roomID, map[string]any{
		"isOwner": isOwner,
	})
}

func (p *RoomPublisher) PublishRoomFull(ctx context.Context, roomID string) error {
	return p.publish(ctx, contracts.EventRoomFull, roomID, nil)
}

func (p *RoomPublisher) PublishTTLExtended(ctx context.Context, roomID string, ttl time.Duration) error {
	return p.publish(ctx, contracts.EventTTLExtended, roomID, map[string]any{
		"ttlSeconds": int64(ttl.Seconds()),
	})
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishRoomCreated(context.Context, string, time.Duration) error { return nil }
func (NopPublisher) PublishRoomDestroyed(context.Context, string, bool) error        { return nil }
func (NopPublisher) PublishRoomExpired(context.Context, string) error                { return nil }
func (NopPublisher) PublishMemberAdmitted(context.Context, string, bool) error       { return nil }
func (NopPublisher) PublishRoomFull(context.Context, string) error                   { return nil }
func (NopPublisher) PublishTTLExtended(context.Context, string, time.Duration) error { return nil }
