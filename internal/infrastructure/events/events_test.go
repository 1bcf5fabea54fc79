package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/contracts"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
)

type recordedMessage struct {
	routingKey string
	message    contracts.AmqpMessage
}

type fakeBroker struct {
	published []recordedMessage
}

func (b *fakeBroker) PublishMessage(_ context.Context, routingKey string, message contracts.AmqpMessage) error {
	b.published = append(b.published, recordedMessage{routingKey: routingKey, message: message})
	return nil
}

type fakeAudit struct {
	logs []*domain.RoomAuditLog
	err  error
}

func (a *fakeAudit) Log(_ context.Context, log *domain.RoomAuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func (a *fakeAudit) GetByRoomID(context.Context, string, int) ([]domain.RoomAuditLog, error) {
	return nil, nil
}

func (a *fakeAudit) EnsureIndexes(context.Context) error { return nil }

func TestPublishedEventsReachTheAuditLog(t *testing.T) {
	broker := &fakeBroker{}
	occurred := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	publisher := &RoomPublisher{publisher: broker, now: func() time.Time { return occurred }}

	ctx := context.Background()
	if err := publisher.PublishRoomCreated(ctx, "r1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := publisher.PublishRoomDestroyed(ctx, "r1", true); err != nil {
		t.Fatal(err)
	}

	if len(broker.published) != 2 {
		t.Fatalf("published %d messages", len(broker.published))
	}
	if broker.published[0].routingKey != contracts.EventRoomCreated || broker.published[0].message.RoomID != "r1" {
		t.Fatalf("unexpected first message %+v", broker.published[0])
	}

	audit := &fakeAudit{}
	consumer := &RoomConsumer{audit: audit, logger: logging.NewNopLogger()}

	for _, m := range broker.published {
		body := mustJSON(t, m.message)
		if err := consumer.handle(ctx, m.routingKey, body); err != nil {
			t.Fatalf("handle %s: %v", m.routingKey, err)
		}
	}

	if len(audit.logs) != 2 {
		t.Fatalf("audit logs = %d", len(audit.logs))
	}
	created := audit.logs[0]
	if created.EventType != domain.EventRoomCreated || created.RoomID != "r1" || !created.Timestamp.Equal(occurred) {
		t.Fatalf("unexpected audit entry %+v", created)
	}
	if got := created.Metadata["ttlSeconds"]; got != float64(600) {
		t.Fatalf("ttlSeconds = %v", got)
	}
	if got := audit.logs[1].Metadata["byOwner"]; got != true {
		t.Fatalf("byOwner = %v", got)
	}
}

func TestConsumerRejectsBadDeliveries(t *testing.T) {
	audit := &fakeAudit{}
	consumer := &RoomConsumer{audit: audit, logger: logging.NewNopLogger()}
	ctx := context.Background()

	if err := consumer.handle(ctx, "room.unknown", []byte(`{}`)); err == nil {
		t.Fatal("unknown routing key should fail")
	}
	if err := consumer.handle(ctx, contracts.EventRoomCreated, []byte(`not json`)); err == nil {
		t.Fatal("malformed body should fail")
	}

	audit.err = errors.New("mongo down")
	body := mustJSON(t, contracts.AmqpMessage{RoomID: "r1", Data: []byte(`{"roomId":"r1"}`)})
	if err := consumer.handle(ctx, contracts.EventRoomExpired, body); err == nil {
		t.Fatal("audit failure should surface so the delivery is dead-lettered")
	}
}
