package roomclient

import "errors"

var (
	ErrCreateFailed   = errors.New("failed to create room")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrUnavailable    = errors.New("room service unavailable")
	ErrMissingRoomID  = errors.New("missing required room id")
	ErrMissingToken   = errors.New("no identity token; enter the room first")
	ErrNotConnected   = errors.New("session is not joined")
	ErrRoomDestroyed  = errors.New("room was destroyed")
	ErrSessionClosed  = errors.New("session closed")
	ErrInvalidMessage = errors.New("message must not be empty")
)

// errorFromReason maps a Gate redirect reason to a client error.
func errorFromReason(reason string) error {
	switch reason {
	case "room-not-found":
		return ErrRoomNotFound
	case "room-full":
		return ErrRoomFull
	default:
		return ErrUnavailable
	}
}
