package messaging

import "time"

const (
	RoomsQueue      = "room_audit"
	DeadLetterQueue = "dead_letter_queue"
)

// RoomEventData is the payload of every room lifecycle event. It never
// carries identity tokens or message text.
type RoomEventData struct {
	RoomID     string         `json:"roomId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
