package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomEventType string

const (
	EventRoomCreated    RoomEventType = "room_created"
	EventRoomDestroyed  RoomEventType = "room_destroyed"
	EventRoomExpired    RoomEventType = "room_expired"
	EventMemberAdmitted RoomEventType = "member_admitted"
	EventRoomFull       RoomEventType = "room_full_rejected"
	EventTTLExtended    RoomEventType = "ttl_extended"
)

// RoomAuditLog records a lifecycle transition. It never carries message
// content or identity tokens.
type RoomAuditLog struct {
	ID        string         `bson:"_id" json:"id"`
	RoomID    string         `bson:"room_id" json:"roomId"`
	EventType RoomEventType  `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, log *RoomAuditLog) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]RoomAuditLog, error)
	EnsureIndexes(ctx context.Context) error
}

func NewRoomAuditLog(roomID string, eventType RoomEventType, metadata map[string]any) *RoomAuditLog {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &RoomAuditLog{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
