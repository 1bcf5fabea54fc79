package ws

import (
	"encoding/json"
	"math"
	"time"

	"github.com/hilthontt/burner/internal/domain"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

type UpdateTTLPayload struct {
	RoomID  string `json:"roomId"`
	Seconds int64  `json:"seconds"`
}

type TTLUpdatePayload struct {
	TTL int64 `json:"ttl"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReceiveMessagePayload is domain.Message on the wire.
type ReceiveMessagePayload = domain.Message

// Encode builds a ready-to-send frame. A nil data encodes as an envelope
// without payload.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodeRoomID reads the bare roomId string payload of join-room and
// destroy-room.
func DecodeRoomID(env Envelope) (string, error) {
	var roomID string
	if err := json.Unmarshal(env.Data, &roomID); err != nil {
		return "", err
	}
	return roomID, nil
}

// TTLSeconds rounds a remaining lifetime up to whole seconds so that zero
// only ever means the room is gone.
func TTLSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64(math.Ceil(ttl.Seconds()))
}
