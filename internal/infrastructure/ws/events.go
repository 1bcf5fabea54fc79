package ws

// Relay events. Names are part of the wire contract with clients.
const (
	EventJoinRoom       = "join-room"       // client -> relay
	EventSendMessage    = "send-message"    // client -> relay
	EventUpdateTTL      = "update-ttl"      // client -> relay
	EventDestroyRoom    = "destroy-room"    // client -> relay
	EventReceiveMessage = "receive-message" // relay -> client
	EventTTLUpdate      = "ttl-update"      // relay -> client
	EventRoomDestroyed  = "room-destroyed"  // relay -> client
	EventError          = "error"           // relay -> client
)

// Error codes carried by EventError.
const (
	CodeInvalidPayload     = "invalid-payload"
	CodeUnknownEvent       = "unknown-event"
	CodeNotMember          = "not-member"
	CodeNotJoined          = "not-joined"
	CodeNotOwner           = "not-owner"
	CodeRoomNotFound       = "room-not-found"
	CodeRateLimited        = "rate-limited"
	CodeServiceUnavailable = "service-unavailable"
)
