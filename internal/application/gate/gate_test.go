package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/events"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/hilthontt/burner/internal/infrastructure/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type brokenStore struct {
	domain.RoomRepository
	err error
}

func (s brokenStore) Admit(context.Context, string, string, string) (domain.Admission, error) {
	return domain.Admission{}, s.err
}

type slowStore struct {
	domain.RoomRepository
}

func (slowStore) Admit(ctx context.Context, _, _, _ string) (domain.Admission, error) {
	<-ctx.Done()
	return domain.Admission{}, ctx.Err()
}

func newGate(t *testing.T, store domain.RoomRepository, timeout time.Duration) (*Gate, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	return New(store, events.NopPublisher{}, m, logging.NewNopLogger(), timeout), m
}

func newRoom(t *testing.T, store domain.RoomRepository) string {
	t.Helper()
	meta := domain.NewRoomMeta(10 * time.Minute)
	if err := store.Create(context.Background(), meta); err != nil {
		t.Fatal(err)
	}
	return meta.RoomID
}

func TestEvaluateScenario(t *testing.T) {
	store := repository.NewMemoryRoomRepository()
	g, m := newGate(t, store, 0)
	ctx := context.Background()
	roomID := newRoom(t, store)

	a, err := g.Evaluate(ctx, roomID, "")
	if err != nil || !a.Admitted || !a.Minted || !a.IsOwner || a.Token == "" {
		t.Fatalf("first visitor = %+v, %v", a, err)
	}

	b, err := g.Evaluate(ctx, roomID, "")
	if err != nil || !b.Admitted || !b.Minted || b.IsOwner || b.Token == a.Token {
		t.Fatalf("second visitor = %+v, %v", b, err)
	}

	c, err := g.Evaluate(ctx, roomID, "")
	if err != nil || c.Admitted || c.Reason != ReasonRoomFull {
		t.Fatalf("third visitor = %+v, %v", c, err)
	}

	again, err := g.Evaluate(ctx, roomID, a.Token)
	if err != nil || !again.Admitted || again.Minted || !again.IsOwner || again.Token != a.Token {
		t.Fatalf("owner returning = %+v, %v", again, err)
	}

	// A token from somewhere else counts as no token.
	stranger, err := g.Evaluate(ctx, roomID, "not-a-member")
	if err != nil || stranger.Reason != ReasonRoomFull {
		t.Fatalf("stranger = %+v, %v", stranger, err)
	}

	if got := testutil.ToFloat64(m.GateDecisions.WithLabelValues(metrics.OutcomeAdmitted)); got != 2 {
		t.Fatalf("admitted counter = %v", got)
	}
	if got := testutil.ToFloat64(m.GateDecisions.WithLabelValues(metrics.OutcomeFull)); got != 2 {
		t.Fatalf("full counter = %v", got)
	}
}

func TestEvaluateUnknownRoom(t *testing.T) {
	store := repository.NewMemoryRoomRepository()
	g, _ := newGate(t, store, 0)

	tests := []struct {
		name   string
		roomID string
	}{
		{name: "well formed but missing", roomID: "3f1c2a7e-8b4d-4c1e-9f2a-6d5b4c3a2e1f"},
		{name: "malformed id", roomID: "../etc"},
		{name: "empty id", roomID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := g.Evaluate(context.Background(), tt.roomID, "")
			if err != nil || d.Admitted || d.Reason != ReasonRoomNotFound {
				t.Fatalf("decision = %+v, %v", d, err)
			}
		})
	}
}

func TestEvaluateFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		store domain.RoomRepository
	}{
		{name: "store error", store: brokenStore{err: errors.New("connection refused")}},
		{name: "wrapped store error", store: brokenStore{err: domain.ErrStoreUnavailable}},
		{name: "store timeout", store: slowStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, m := newGate(t, tt.store, 20*time.Millisecond)

			d, err := g.Evaluate(context.Background(), "3f1c2a7e-8b4d-4c1e-9f2a-6d5b4c3a2e1f", "")
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				t.Fatalf("error = %v, want ErrStoreUnavailable", err)
			}
			if d.Admitted || d.Reason != ReasonServiceUnavailable || d.Token != "" {
				t.Fatalf("decision = %+v", d)
			}
			if got := testutil.ToFloat64(m.GateDecisions.WithLabelValues(metrics.OutcomeUnavailable)); got != 1 {
				t.Fatalf("unavailable counter = %v", got)
			}
		})
	}
}

func TestEvaluateConcurrentFirstVisitors(t *testing.T) {
	store := repository.NewMemoryRoomRepository()
	g, _ := newGate(t, store, 0)
	roomID := newRoom(t, store)

	const visitors = 32
	decisions := make(chan Decision, visitors)

	var wg sync.WaitGroup
	for range visitors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Evaluate(context.Background(), roomID, "")
			if err != nil {
				t.Errorf("evaluate: %v", err)
			}
			decisions <- d
		}()
	}
	wg.Wait()
	close(decisions)

	admitted, owners := 0, 0
	for d := range decisions {
		if d.Admitted {
			admitted++
			if d.IsOwner {
				owners++
			}
		} else if d.Reason != ReasonRoomFull {
			t.Fatalf("unexpected rejection %+v", d)
		}
	}

	if admitted != domain.MaxParticipants || owners != 1 {
		t.Fatalf("admitted %d, owners %d", admitted, owners)
	}
}
