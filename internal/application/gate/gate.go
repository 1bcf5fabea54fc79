package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/events"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/hilthontt/burner/internal/infrastructure/validate"
)

type Reason string

const (
	ReasonRoomNotFound       Reason = "room-not-found"
	ReasonRoomFull           Reason = "room-full"
	ReasonServiceUnavailable Reason = "service-unavailable"
)

const defaultTimeout = 2 * time.Second

// Decision is the outcome of a room access request. Reason is set only when
// Admitted is false.
type Decision struct {
	Admitted bool
	IsOwner  bool
	Token    string
	// Minted means Token is new and must be handed back to the caller.
	Minted   bool
	Reason   Reason
}

// Gate decides who may enter a room. Admission itself is delegated to the
// store so check-and-append is a single atomic step.
type Gate struct {
	rooms    domain.RoomRepository
	events   events.RoomEvents
	metrics  *metrics.Metrics
	logger   logging.Logger
	timeout  time.Duration
	newToken func() string
	validID  validate.Validator
}

func New(rooms domain.RoomRepository, publisher events.RoomEvents, m *metrics.Metrics, logger logging.Logger, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gate{
		rooms:    rooms,
		events:   publisher,
		metrics:  m,
		logger:   logger,
		timeout:  timeout,
		newToken: domain.NewIdentityToken,
		validID:  validate.RoomID(),
	}
}

// Evaluate admits presented if it already belongs to the room, otherwise
// tries to claim a free slot for a freshly minted token. Store faults fail
// closed: the decision is service-unavailable and the returned error wraps
// domain.ErrStoreUnavailable.
func (g *Gate) Evaluate(ctx context.Context, roomID, presented string) (Decision, error) {
	if err := g.validID(roomID); err != nil {
		g.record(roomID, metrics.OutcomeNotFound)
		return Decision{Reason: ReasonRoomNotFound}, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	adm, err := g.rooms.Admit(opCtx, roomID, presented, g.newToken())
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRoomNotFound):
		g.record(roomID, metrics.OutcomeNotFound)
		return Decision{Reason: ReasonRoomNotFound}, nil
	case errors.Is(err, domain.ErrRoomFull):
		g.record(roomID, metrics.OutcomeFull)
		g.publish(roomID, func(ctx context.Context) error { return g.events.PublishRoomFull(ctx, roomID) })
		return Decision{Reason: ReasonRoomFull}, nil
	default:
		g.record(roomID, metrics.OutcomeUnavailable)
		g.logger.Error(logging.Gate, logging.Admission, "room store unavailable", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return Decision{Reason: ReasonServiceUnavailable}, err
	}

	if adm.Minted {
		g.record(roomID, metrics.OutcomeAdmitted)
		g.publish(roomID, func(ctx context.Context) error { return g.events.PublishMemberAdmitted(ctx, roomID, adm.IsOwner) })
	} else {
		g.record(roomID, metrics.OutcomeReentered)
	}

	return Decision{
		Admitted: true,
		IsOwner:  adm.IsOwner,
		Token:    adm.Token,
		Minted:   adm.Minted,
	}, nil
}

func (g *Gate) record(roomID, outcome string) {
	g.metrics.GateDecisions.WithLabelValues(outcome).Inc()
	g.logger.Debug(logging.Gate, logging.Admission, "gate decision", map[logging.ExtraKey]any{
		logging.RoomID:  roomID,
		logging.Outcome: outcome,
	})
}

func (g *Gate) publish(roomID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		g.logger.Warn(logging.RabbitMQ, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}
