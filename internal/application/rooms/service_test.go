package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/events"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/hilthontt/burner/internal/infrastructure/repository"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type frame struct {
	roomID string
	env    ws.Envelope
}

type fakeRelay struct {
	mu         sync.Mutex
	active     []string
	broadcasts []frame
	destroyed  []frame
}

func decodeFrame(roomID string, payload []byte) frame {
	var env ws.Envelope
	_ = json.Unmarshal(payload, &env)
	return frame{roomID: roomID, env: env}
}

func (r *fakeRelay) Subscribe(*ws.Client, string) {}

func (r *fakeRelay) Broadcast(roomID string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, decodeFrame(roomID, payload))
}

func (r *fakeRelay) Destroy(roomID string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, decodeFrame(roomID, payload))
}

func (r *fakeRelay) ActiveRooms(context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.active...)
}

type faultyTTLStore struct {
	domain.RoomRepository
}

func (faultyTTLStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, domain.ErrStoreUnavailable
}

type fixture struct {
	svc     *Service
	store   domain.RoomRepository
	relay   *fakeRelay
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, store domain.RoomRepository) fixture {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryRoomRepository()
	}
	relay := &fakeRelay{}
	m := metrics.New()
	svc := NewService(cfg, store, relay, events.NopPublisher{}, m, logging.NewNopLogger())
	return fixture{svc: svc, store: store, relay: relay, metrics: m}
}

// admitTwo fills the room with owner tA and guest tB.
func admitTwo(t *testing.T, store domain.RoomRepository, roomID string) {
	t.Helper()
	ctx := context.Background()
	for _, tok := range []string{"tA", "tB"} {
		if _, err := store.Admit(ctx, roomID, "", tok); err != nil {
			t.Fatalf("admit %s: %v", tok, err)
		}
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	meta, err := f.svc.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if meta.TTL != 10*time.Minute || len(meta.ConnectedTokens) != 0 {
		t.Fatalf("unexpected room %+v", meta)
	}

	ttl, err := f.svc.TTL(context.Background(), meta.RoomID)
	if err != nil || ttl <= 9*time.Minute {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
	if got := testutil.ToFloat64(f.metrics.RoomsCreated); got != 1 {
		t.Fatalf("rooms created = %v", got)
	}
}

func TestExtend(t *testing.T) {
	f := newFixture(t, Config{DefaultTTL: 10 * time.Minute, MaxTTL: 15 * time.Minute, MaxExtension: 10 * time.Minute}, nil)
	ctx := context.Background()

	meta, err := f.svc.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	admitTwo(t, f.store, meta.RoomID)

	tests := []struct {
		name    string
		token   string
		seconds int64
		wantErr error
	}{
		{name: "guest may not extend", token: "tB", seconds: 60, wantErr: domain.ErrNotOwner},
		{name: "stranger may not extend", token: "tZ", seconds: 60, wantErr: domain.ErrNotOwner},
		{name: "zero seconds", token: "tA", seconds: 0, wantErr: domain.ErrInvalidInput},
		{name: "beyond max extension", token: "tA", seconds: 601, wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Extend(ctx, meta.RoomID, tt.token, tt.seconds); !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	ttl, err := f.svc.Extend(ctx, meta.RoomID, "tA", 600)
	if err != nil {
		t.Fatalf("owner extend: %v", err)
	}
	if ttl > 15*time.Minute || ttl < 14*time.Minute {
		t.Fatalf("ttl = %v, want capped near 15m", ttl)
	}

	if len(f.relay.broadcasts) != 1 {
		t.Fatalf("broadcasts = %d", len(f.relay.broadcasts))
	}
	got := f.relay.broadcasts[0]
	if got.roomID != meta.RoomID || got.env.Event != ws.EventTTLUpdate {
		t.Fatalf("unexpected broadcast %+v", got)
	}
	var payload ws.TTLUpdatePayload
	if err := json.Unmarshal(got.env.Data, &payload); err != nil || payload.TTL != ws.TTLSeconds(ttl) {
		t.Fatalf("ttl payload = %+v, %v", payload, err)
	}
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()

	t.Run("any member by default", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		meta, _ := f.svc.Create(ctx)
		admitTwo(t, f.store, meta.RoomID)

		if err := f.svc.Destroy(ctx, meta.RoomID, "tZ"); !errors.Is(err, domain.ErrNotMember) {
			t.Fatalf("stranger destroy error = %v", err)
		}
		if err := f.svc.Destroy(ctx, meta.RoomID, "tB"); err != nil {
			t.Fatalf("guest destroy: %v", err)
		}
		if _, err := f.store.Get(ctx, meta.RoomID); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Fatalf("room survived destroy: %v", err)
		}
		if len(f.relay.destroyed) != 1 || f.relay.destroyed[0].env.Event != ws.EventRoomDestroyed {
			t.Fatalf("relay destroy calls = %+v", f.relay.destroyed)
		}
		if got := testutil.ToFloat64(f.metrics.RoomsDestroyed.WithLabelValues(metrics.ReasonDestroyed)); got != 1 {
			t.Fatalf("destroyed counter = %v", got)
		}
		if err := f.svc.Destroy(ctx, meta.RoomID, "tA"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Fatalf("second destroy error = %v", err)
		}
	})

	t.Run("owner only when configured", func(t *testing.T) {
		f := newFixture(t, Config{OwnerOnlyDestroy: true}, nil)
		meta, _ := f.svc.Create(ctx)
		admitTwo(t, f.store, meta.RoomID)

		if err := f.svc.Destroy(ctx, meta.RoomID, "tB"); !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("guest destroy error = %v", err)
		}
		if err := f.svc.Destroy(ctx, meta.RoomID, "tA"); err != nil {
			t.Fatalf("owner destroy: %v", err)
		}
	})
}

func TestTTLWatcherSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil)

	live, _ := f.svc.Create(ctx)
	gone, _ := f.svc.Create(ctx)
	if err := f.store.Delete(ctx, gone.RoomID); err != nil {
		t.Fatal(err)
	}
	f.relay.active = []string{live.RoomID, gone.RoomID}

	NewTTLWatcher(f.svc, time.Second).Sync(ctx)

	if len(f.relay.broadcasts) != 1 || f.relay.broadcasts[0].roomID != live.RoomID {
		t.Fatalf("broadcasts = %+v", f.relay.broadcasts)
	}
	var payload ws.TTLUpdatePayload
	_ = json.Unmarshal(f.relay.broadcasts[0].env.Data, &payload)
	if payload.TTL <= 0 || payload.TTL > 600 {
		t.Fatalf("ttl payload = %+v", payload)
	}

	if len(f.relay.destroyed) != 1 || f.relay.destroyed[0].roomID != gone.RoomID {
		t.Fatalf("destroyed = %+v", f.relay.destroyed)
	}
	if got := testutil.ToFloat64(f.metrics.RoomsDestroyed.WithLabelValues(metrics.ReasonExpired)); got != 1 {
		t.Fatalf("expired counter = %v", got)
	}
}

func TestTTLWatcherKeepsRoomsDuringStoreOutage(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRoomRepository()
	f := newFixture(t, Config{}, faultyTTLStore{RoomRepository: store})

	meta, _ := f.svc.Create(ctx)
	f.relay.active = []string{meta.RoomID}

	NewTTLWatcher(f.svc, time.Second).Sync(ctx)

	if len(f.relay.destroyed) != 0 || len(f.relay.broadcasts) != 0 {
		t.Fatalf("outage caused relay traffic: %+v %+v", f.relay.destroyed, f.relay.broadcasts)
	}
	if _, err := store.Get(ctx, meta.RoomID); err != nil {
		t.Fatalf("room removed during outage: %v", err)
	}
}
