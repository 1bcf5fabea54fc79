package domain

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxParticipants is the capacity of every room.
const MaxParticipants = 2

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrNotOwner          = errors.New("only the room owner can do that")
	ErrNotMember         = errors.New("not a member of the room")
	ErrStoreUnavailable  = errors.New("room store unavailable")
	ErrInvalidInput      = errors.New("invalid input")
)

// RoomMeta is the shared membership record of a room.
//
// ConnectedTokens keeps join order; the first token is the owner. Tokens are
// never removed while the room lives, so a participant that disconnects keeps
// its slot until the room is destroyed or expires.
type RoomMeta struct {
	RoomID          string        `json:"roomId"`
	ConnectedTokens []string      `json:"connected"`
	OwnerToken      string        `json:"ownerToken,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	TTL             time.Duration `json:"ttl"`
}

// Admission is the outcome of a successful Admit.
type Admission struct {
	Token   string
	IsOwner bool
	// Minted is true when Token was appended by this call and must be handed
	// to the caller as its new credential.
	Minted bool
}

type RoomRepository interface {
	Create(ctx context.Context, meta *RoomMeta) error
	Get(ctx context.Context, roomID string) (*RoomMeta, error)
	// Admit applies RoomMeta.Admit atomically against the stored record.
	Admit(ctx context.Context, roomID, presented, candidate string) (Admission, error)
	TTL(ctx context.Context, roomID string) (time.Duration, error)
	// ExtendTTL adds by to the remaining lifetime, never beyond limit, and
	// returns the new remaining lifetime.
	ExtendTTL(ctx context.Context, roomID string, by, limit time.Duration) (time.Duration, error)
	Delete(ctx context.Context, roomID string) error
}

func NewRoomMeta(ttl time.Duration) *RoomMeta {
	return &RoomMeta{
		RoomID:          uuid.NewString(),
		ConnectedTokens: make([]string, 0, MaxParticipants),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		TTL:             ttl,
	}
}

// NewIdentityToken mints an opaque per-room credential.
func NewIdentityToken() string {
	return uuid.NewString()
}

func (m *RoomMeta) IsMember(token string) bool {
	if token == "" {
		return false
	}
	return slices.Contains(m.ConnectedTokens, token)
}

func (m *RoomMeta) IsOwner(token string) bool {
	return token != "" && m.OwnerToken == token
}

func (m *RoomMeta) IsFull() bool {
	return len(m.ConnectedTokens) >= MaxParticipants
}

// Admit decides whether presented (or, failing that, candidate) may enter the
// room. A known token is always re-admitted without mutation. Otherwise the
// candidate is appended if there is a free slot, becoming the owner when it is
// the first one.
func (m *RoomMeta) Admit(presented, candidate string) (Admission, error) {
	if m.IsMember(presented) {
		return Admission{
			Token:   presented,
			IsOwner: m.IsOwner(presented),
		}, nil
	}

	if m.IsFull() {
		return Admission{}, ErrRoomFull
	}

	if candidate == "" {
		return Admission{}, ErrInvalidInput
	}

	isOwner := len(m.ConnectedTokens) == 0
	m.ConnectedTokens = append(m.ConnectedTokens, candidate)
	if isOwner {
		m.OwnerToken = candidate
	}

	return Admission{
		Token:   candidate,
		IsOwner: isOwner,
		Minted:  true,
	}, nil
}

// Clone returns a deep copy safe to hand out of a store.
func (m *RoomMeta) Clone() *RoomMeta {
	c := *m
	c.ConnectedTokens = slices.Clone(m.ConnectedTokens)
	if c.ConnectedTokens == nil {
		c.ConnectedTokens = []string{}
	}
	return &c
}
