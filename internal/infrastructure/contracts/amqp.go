package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	RoomID string `json:"roomId"`
	Data   []byte `json:"data"`
}

// Routing keys for room lifecycle events
const (
	EventRoomCreated    = "room.created"
	EventRoomDestroyed  = "room.destroyed"
	EventRoomExpired    = "room.expired"
	EventMemberAdmitted = "member.admitted"
	EventRoomFull       = "room.full"
	EventTTLExtended    = "room.ttl_extended"
)

// AllRoomEvents is every routing key the audit consumer binds.
var AllRoomEvents = []string{
	EventRoomCreated,
	EventRoomDestroyed,
	EventRoomExpired,
	EventMemberAdmitted,
	EventRoomFull,
	EventTTLExtended,
}
