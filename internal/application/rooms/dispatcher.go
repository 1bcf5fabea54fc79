package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/validate"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
)

var (
	validRoomID   = validate.RoomID()
	validMessage  = validate.MessageText(maxMessageBytes)
	validUsername = validate.Username()
)

// Dispatch handles one client frame. Failures are reported to the sender as
// error frames; nothing a client sends can stop the relay.
func (s *Service) Dispatch(ctx context.Context, cl *ws.Client, env ws.Envelope) {
	switch env.Event {
	case ws.EventJoinRoom:
		s.handleJoin(ctx, cl, env)
	case ws.EventSendMessage:
		s.handleSendMessage(cl, env)
	case ws.EventUpdateTTL:
		s.handleUpdateTTL(ctx, cl, env)
	case ws.EventDestroyRoom:
		s.handleDestroy(ctx, cl, env)
	default:
		cl.EmitError(ws.CodeUnknownEvent, fmt.Sprintf("unknown event %q", env.Event))
	}
}

// Disconnected leaves room state untouched: a participant keeps its slot
// until the room is destroyed or expires.
func (s *Service) Disconnected(cl *ws.Client) {
	s.messages.Forget(cl.ID)
	s.logger.Debug(logging.Relay, logging.Connection, "relay connection closed", map[logging.ExtraKey]any{
		logging.ClientID: cl.ID,
		logging.RoomID:   cl.Room(),
	})
}

func (s *Service) handleJoin(ctx context.Context, cl *ws.Client, env ws.Envelope) {
	roomID, err := ws.DecodeRoomID(env)
	if err != nil || validRoomID(roomID) != nil {
		cl.EmitError(ws.CodeInvalidPayload, "join-room expects a room id")
		return
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	meta, err := s.rooms.Get(opCtx, roomID)
	if err != nil {
		s.emitDomainError(cl, err)
		return
	}
	if !meta.IsMember(cl.Token) {
		cl.EmitError(ws.CodeNotMember, "enter the room before joining its relay")
		return
	}

	s.relay.Subscribe(cl, roomID)
	cl.Emit(ws.EventTTLUpdate, ws.TTLUpdatePayload{TTL: ws.TTLSeconds(meta.TTL)})

	s.logger.Debug(logging.Relay, logging.Connection, "relay connection joined room", map[logging.ExtraKey]any{
		logging.ClientID: cl.ID,
		logging.RoomID:   roomID,
	})
}

func (s *Service) handleSendMessage(cl *ws.Client, env ws.Envelope) {
	var payload ws.SendMessagePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		cl.EmitError(ws.CodeInvalidPayload, "send-message expects {roomId, message, username}")
		return
	}

	if payload.RoomID == "" || payload.RoomID != cl.Room() {
		cl.EmitError(ws.CodeNotJoined, "join the room before sending messages")
		return
	}
	if err := validMessage(payload.Message); err != nil {
		cl.EmitError(ws.CodeInvalidPayload, err.Error())
		return
	}
	if err := validUsername(payload.Username); err != nil {
		cl.EmitError(ws.CodeInvalidPayload, err.Error())
		return
	}
	if ok, _ := s.messages.Allow(cl.ID); !ok {
		cl.EmitError(ws.CodeRateLimited, "too many messages, slow down")
		return
	}

	msg := domain.NewMessage(payload.Message, payload.Username)
	frame, err := ws.Encode(ws.EventReceiveMessage, msg)
	if err != nil {
		cl.EmitError(ws.CodeInvalidPayload, "message could not be encoded")
		return
	}

	s.relay.Broadcast(payload.RoomID, frame)
	s.metrics.RelayedMessages.Inc()
}

func (s *Service) handleUpdateTTL(ctx context.Context, cl *ws.Client, env ws.Envelope) {
	var payload ws.UpdateTTLPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		cl.EmitError(ws.CodeInvalidPayload, "update-ttl expects {roomId, seconds}")
		return
	}
	if payload.RoomID == "" || payload.RoomID != cl.Room() {
		cl.EmitError(ws.CodeNotJoined, "join the room before changing its lifetime")
		return
	}

	if _, err := s.Extend(ctx, payload.RoomID, cl.Token, payload.Seconds); err != nil {
		s.emitDomainError(cl, err)
	}
}

func (s *Service) handleDestroy(ctx context.Context, cl *ws.Client, env ws.Envelope) {
	roomID, err := ws.DecodeRoomID(env)
	if err != nil || validRoomID(roomID) != nil {
		cl.EmitError(ws.CodeInvalidPayload, "destroy-room expects a room id")
		return
	}

	if err := s.Destroy(ctx, roomID, cl.Token); err != nil {
		s.emitDomainError(cl, err)
	}
}

func (s *Service) emitDomainError(cl *ws.Client, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		cl.EmitError(ws.CodeRoomNotFound, "room not found")
	case errors.Is(err, domain.ErrNotOwner):
		cl.EmitError(ws.CodeNotOwner, "only the room owner can do that")
	case errors.Is(err, domain.ErrNotMember):
		cl.EmitError(ws.CodeNotMember, "not a member of the room")
	case errors.Is(err, domain.ErrInvalidInput):
		cl.EmitError(ws.CodeInvalidPayload, err.Error())
	default:
		s.logger.Error(logging.Relay, logging.Dispatch, "relay operation failed", map[logging.ExtraKey]any{
			logging.ClientID:     cl.ID,
			logging.ErrorMessage: err.Error(),
		})
		cl.EmitError(ws.CodeServiceUnavailable, "the room store is unavailable, try again")
	}
}
