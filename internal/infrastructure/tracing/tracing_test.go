package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(Config{ServiceName: "burner-test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := InitTracer(Config{Enabled: true}); err == nil {
		t.Fatal("expected an error without an endpoint")
	}
}

func TestEndRecordsOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, ok := tracer.Start(context.Background(), "roomRepository.Get")
	ok.SetAttributes(RoomID("room-1"), TokenPresented(""))
	End(ok, nil, "room loaded")

	_, failed := tracer.Start(context.Background(), "roomRepository.Admit")
	End(failed, errors.New("redis down"), "admission decided")

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Fatalf("ok span status = %v", spans[0].Status())
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "token.presented" && kv.Value.AsBool() {
			t.Fatal("empty token reported as presented")
		}
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) == 0 {
		t.Fatalf("failed span status = %v, events = %d", spans[1].Status(), len(spans[1].Events()))
	}
}
