package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/events"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/hilthontt/burner/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
)

const maxMessageBytes = 2000

// Relay is the fan-out side the lifecycle talks to.
type Relay interface {
	Subscribe(cl *ws.Client, roomID string)
	Broadcast(roomID string, payload []byte)
	Destroy(roomID string, payload []byte)
	ActiveRooms(ctx context.Context) []string
}

type Config struct {
	DefaultTTL           time.Duration
	MaxTTL               time.Duration
	MaxExtension         time.Duration
	OwnerOnlyDestroy     bool
	OperationTimeout     time.Duration
	MaxMessagesPerSecond int
}

// Service owns room lifecycles: creation, extension, destruction and expiry.
// It is also the relay's Dispatcher.
type Service struct {
	cfg      Config
	rooms    domain.RoomRepository
	relay    Relay
	events   events.RoomEvents
	metrics  *metrics.Metrics
	logger   logging.Logger
	messages *ratelimiter.WindowLimiter
}

func NewService(
	cfg Config,
	rooms domain.RoomRepository,
	relay Relay,
	publisher events.RoomEvents,
	m *metrics.Metrics,
	logger logging.Logger,
) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		cfg.MaxTTL = cfg.DefaultTTL
	}
	if cfg.MaxExtension <= 0 {
		cfg.MaxExtension = time.Hour
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Second
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = 20
	}

	return &Service{
		cfg:      cfg,
		rooms:    rooms,
		relay:    relay,
		events:   publisher,
		metrics:  m,
		logger:   logger,
		messages: ratelimiter.NewWindowLimiter(cfg.MaxMessagesPerSecond, time.Second),
	}
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// Create allocates a room with no members and the default lifetime.
func (s *Service) Create(ctx context.Context) (*domain.RoomMeta, error) {
	meta := domain.NewRoomMeta(s.cfg.DefaultTTL)

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.rooms.Create(opCtx, meta); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.metrics.RoomsCreated.Inc()
	s.logger.Info(logging.Internal, logging.Lifetime, "room created", map[logging.ExtraKey]any{
		logging.RoomID: meta.RoomID,
		logging.TTL:    meta.TTL.String(),
	})
	s.publish(meta.RoomID, func(ctx context.Context) error {
		return s.events.PublishRoomCreated(ctx, meta.RoomID, meta.TTL)
	})

	return meta, nil
}

// TTL reports the remaining lifetime of a room.
func (s *Service) TTL(ctx context.Context, roomID string) (time.Duration, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	return s.rooms.TTL(opCtx, roomID)
}

// Extend adds seconds to the room's lifetime. Only the owner may extend and
// the result never exceeds the configured maximum.
func (s *Service) Extend(ctx context.Context, roomID, token string, seconds int64) (time.Duration, error) {
	by := time.Duration(seconds) * time.Second
	if seconds <= 0 || by > s.cfg.MaxExtension {
		return 0, fmt.Errorf("%w: extension must be between 1 and %d seconds", domain.ErrInvalidInput, int64(s.cfg.MaxExtension.Seconds()))
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	meta, err := s.rooms.Get(opCtx, roomID)
	if err != nil {
		return 0, err
	}
	if !meta.IsOwner(token) {
		return 0, domain.ErrNotOwner
	}

	ttl, err := s.rooms.ExtendTTL(opCtx, roomID, by, s.cfg.MaxTTL)
	if err != nil {
		return 0, err
	}

	if payload, err := ws.Encode(ws.EventTTLUpdate, ws.TTLUpdatePayload{TTL: ws.TTLSeconds(ttl)}); err == nil {
		s.relay.Broadcast(roomID, payload)
	}

	s.logger.Info(logging.Internal, logging.Lifetime, "room lifetime extended", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.TTL:    ttl.String(),
	})
	s.publish(roomID, func(ctx context.Context) error {
		return s.events.PublishTTLExtended(ctx, roomID, ttl)
	})

	return ttl, nil
}

// Destroy ends the room at a member's request.
func (s *Service) Destroy(ctx context.Context, roomID, token string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	meta, err := s.rooms.Get(opCtx, roomID)
	if err != nil {
		return err
	}
	if !meta.IsMember(token) {
		return domain.ErrNotMember
	}
	if s.cfg.OwnerOnlyDestroy && !meta.IsOwner(token) {
		return domain.ErrNotOwner
	}

	if err := s.rooms.Delete(opCtx, roomID); err != nil {
		return err
	}

	s.teardown(roomID, metrics.ReasonDestroyed)
	s.publish(roomID, func(ctx context.Context) error {
		return s.events.PublishRoomDestroyed(ctx, roomID, meta.IsOwner(token))
	})

	return nil
}

// Expire runs the destruction cascade for a room whose lifetime ran out. The
// RoomMeta is usually gone already.
func (s *Service) Expire(ctx context.Context, roomID string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.rooms.Delete(opCtx, roomID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return err
	}

	s.teardown(roomID, metrics.ReasonExpired)
	s.publish(roomID, func(ctx context.Context) error {
		return s.events.PublishRoomExpired(ctx, roomID)
	})

	return nil
}

func (s *Service) teardown(roomID, reason string) {
	payload, err := ws.Encode(ws.EventRoomDestroyed, nil)
	if err != nil {
		s.logger.Error(logging.Relay, logging.Destroy, "failed to encode room-destroyed", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	s.relay.Destroy(roomID, payload)
	s.metrics.RoomsDestroyed.WithLabelValues(reason).Inc()
	s.logger.Info(logging.Internal, logging.Destroy, "room destroyed", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.Reason: reason,
	})
}

func (s *Service) publish(roomID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.logger.Warn(logging.RabbitMQ, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}
