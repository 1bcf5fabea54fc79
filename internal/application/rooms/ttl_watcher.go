package rooms

import (
	"context"
	"errors"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
)

// TTLWatcher pushes the authoritative remaining lifetime to every room with
// relay subscribers and expires rooms whose lifetime ran out.
type TTLWatcher struct {
	service  *Service
	interval time.Duration
}

func NewTTLWatcher(service *Service, interval time.Duration) *TTLWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &TTLWatcher{service: service, interval: interval}
}

func (w *TTLWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sync runs one pass over the active rooms.
func (w *TTLWatcher) Sync(ctx context.Context) {
	s := w.service

	for _, roomID := range s.relay.ActiveRooms(ctx) {
		ttl, err := s.TTL(ctx, roomID)
		switch {
		case errors.Is(err, domain.ErrRoomNotFound), err == nil && ttl <= 0:
			if err := s.Expire(ctx, roomID); err != nil {
				s.logger.Warn(logging.Internal, logging.Expiry, "failed to expire room", map[logging.ExtraKey]any{
					logging.RoomID:       roomID,
					logging.ErrorMessage: err.Error(),
				})
			}
		case err != nil:
			// Keep the room; a store outage is not an expiry.
			s.logger.Warn(logging.Internal, logging.Expiry, "could not read room lifetime", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		default:
			payload, err := ws.Encode(ws.EventTTLUpdate, ws.TTLUpdatePayload{TTL: ws.TTLSeconds(ttl)})
			if err != nil {
				continue
			}
			s.relay.Broadcast(roomID, payload)
		}
	}
}
