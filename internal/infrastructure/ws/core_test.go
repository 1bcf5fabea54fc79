package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func startCore(t *testing.T) (*Core, *metrics.Metrics) {
	t.Helper()

	m := metrics.New()
	core := NewCore(logging.NewNopLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	go core.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-core.done
	})

	return core, m
}

func newTestClient(t *testing.T, core *Core, buffer int) *Client {
	t.Helper()

	cl := &Client{ID: t.Name(), send: make(chan []byte, buffer), core: core, logger: logging.NewNopLogger()}
	if !core.Attach(cl) {
		t.Fatal("core refused client")
	}
	return cl
}

func receive(t *testing.T, cl *Client) Envelope {
	t.Helper()

	select {
	case payload, ok := <-cl.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("bad frame %s: %v", payload, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Envelope{}
}

func expectClosed(t *testing.T, cl *Client) {
	t.Helper()

	select {
	case _, ok := <-cl.send:
		if ok {
			t.Fatal("expected closed send channel, got a frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}
}

func mustEncode(t *testing.T, event string, data any) []byte {
	t.Helper()
	payload, err := Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestCoreBroadcastReachesEverySubscriber(t *testing.T) {
	core, m := startCore(t)
	a := newTestClient(t, core, 4)
	b := newTestClient(t, core, 4)
	outsider := newTestClient(t, core, 4)

	core.Subscribe(a, "r1")
	core.Subscribe(b, "r1")
	core.Subscribe(outsider, "r2")

	if a.Room() != "r1" {
		t.Fatalf("room = %q", a.Room())
	}
	if got := core.ActiveRooms(context.Background()); len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Fatalf("active rooms = %v", got)
	}
	if got := testutil.ToFloat64(m.RelaySubscribers); got != 3 {
		t.Fatalf("subscribers gauge = %v", got)
	}

	core.Broadcast("r1", mustEncode(t, EventTTLUpdate, TTLUpdatePayload{TTL: 42}))

	for _, cl := range []*Client{a, b} {
		env := receive(t, cl)
		if env.Event != EventTTLUpdate || string(env.Data) != `{"ttl":42}` {
			t.Fatalf("unexpected frame %+v", env)
		}
	}

	select {
	case payload := <-outsider.send:
		t.Fatalf("outsider received %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoreDestroyNotifiesThenCloses(t *testing.T) {
	core, _ := startCore(t)
	a := newTestClient(t, core, 4)
	b := newTestClient(t, core, 4)
	core.Subscribe(a, "r1")
	core.Subscribe(b, "r1")

	core.Destroy("r1", mustEncode(t, EventRoomDestroyed, nil))

	for _, cl := range []*Client{a, b} {
		if env := receive(t, cl); env.Event != EventRoomDestroyed {
			t.Fatalf("unexpected frame %+v", env)
		}
		expectClosed(t, cl)
	}

	if got := core.ActiveRooms(context.Background()); len(got) != 0 {
		t.Fatalf("active rooms after destroy = %v", got)
	}

	// Late detach from the read pump must be harmless.
	core.Detach(a)
}

func TestCoreDropsSlowSubscriber(t *testing.T) {
	core, m := startCore(t)
	slow := newTestClient(t, core, 1)
	fast := newTestClient(t, core, 4)
	core.Subscribe(slow, "r1")
	core.Subscribe(fast, "r1")

	core.Broadcast("r1", mustEncode(t, EventTTLUpdate, TTLUpdatePayload{TTL: 2}))
	core.Broadcast("r1", mustEncode(t, EventTTLUpdate, TTLUpdatePayload{TTL: 1}))

	receive(t, fast)
	receive(t, fast)

	receive(t, slow)
	expectClosed(t, slow)

	if got := testutil.ToFloat64(m.DroppedClients); got != 1 {
		t.Fatalf("dropped clients = %v", got)
	}
	if got := testutil.ToFloat64(m.RelaySubscribers); got != 1 {
		t.Fatalf("subscribers gauge = %v", got)
	}
}

func TestCoreJoinMovesSubscription(t *testing.T) {
	core, _ := startCore(t)
	cl := newTestClient(t, core, 4)

	core.Subscribe(cl, "r1")
	core.Subscribe(cl, "r1")
	core.Subscribe(cl, "r2")

	if got := core.ActiveRooms(context.Background()); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("active rooms = %v", got)
	}

	core.Broadcast("r1", mustEncode(t, EventTTLUpdate, TTLUpdatePayload{TTL: 1}))
	core.SendTo(cl, mustEncode(t, EventError, ErrorPayload{Code: CodeNotJoined}))

	if env := receive(t, cl); env.Event != EventError {
		t.Fatalf("old room still delivers: %+v", env)
	}
}

func TestCoreDetachUnsubscribes(t *testing.T) {
	core, m := startCore(t)
	cl := newTestClient(t, core, 4)
	core.Subscribe(cl, "r1")

	core.Detach(cl)
	expectClosed(t, cl)

	if got := core.ActiveRooms(context.Background()); len(got) != 0 {
		t.Fatalf("active rooms = %v", got)
	}
	if got := testutil.ToFloat64(m.RelayRooms); got != 0 {
		t.Fatalf("rooms gauge = %v", got)
	}
}

func TestTTLSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{in: 0, want: 0},
		{in: -time.Second, want: 0},
		{in: 300 * time.Millisecond, want: 1},
		{in: 10 * time.Minute, want: 600},
		{in: 9*time.Second + time.Millisecond, want: 10},
	}
	for _, tt := range tests {
		if got := TTLSeconds(tt.in); got != tt.want {
			t.Errorf("TTLSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
