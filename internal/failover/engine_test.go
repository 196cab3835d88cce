package failover_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/failover"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/store"
	"github.com/solconnect/messaging-core/internal/transport"
)

type noopProber struct{}

func (noopProber) Probe(context.Context, *model.RelayEndpoint) error { return nil }

func TestTriggerSelectsHealthyReplacement(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	directory := relay.New(relay.RoundRobin, "", noopProber{})
	directory.Upsert(&model.RelayEndpoint{ID: "old", URL: "fake://old", IsHealthy: true, MaxConnections: 10})
	directory.Upsert(&model.RelayEndpoint{ID: "new", URL: "fake://new", IsHealthy: true, MaxConnections: 10})

	st := store.NewMemory()
	dial := func() transport.Transport { return transport.NewFake() }
	engine := failover.New(directory, st, bus, dial, slog.Default())

	result := engine.Trigger(ctx, "conn-1", "old", nil)
	if result == nil {
		t.Fatal("expected Trigger to return a connected transport")
	}
	if result.State() != transport.StateConnected {
		t.Fatalf("expected new transport to be connected, got %v", result.State())
	}
}

func TestTriggerEmitsSpanWhenTracerAttached(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	directory := relay.New(relay.RoundRobin, "", noopProber{})
	directory.Upsert(&model.RelayEndpoint{ID: "new", URL: "fake://new", IsHealthy: true, MaxConnections: 10})

	st := store.NewMemory()
	dial := func() transport.Transport { return transport.NewFake() }
	engine := failover.New(directory, st, bus, dial, slog.Default())

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	engine.AttachTracer(tp.Tracer("failover-test"))

	if result := engine.Trigger(ctx, "conn-2", "old", nil); result == nil {
		t.Fatal("expected Trigger to return a connected transport")
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "failover.trigger" {
		t.Fatalf("expected one failover.trigger span, got %v", spans)
	}
}

func TestTriggerCoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	directory := relay.New(relay.RoundRobin, "", noopProber{})
	directory.Upsert(&model.RelayEndpoint{ID: "new", URL: "fake://new", IsHealthy: true, MaxConnections: 10})

	st := store.NewMemory()
	// The first dial blocks until release is closed, keeping the first run
	// in flight while the second Trigger is issued.
	release := make(chan struct{})
	var dials atomic.Int32
	dial := func() transport.Transport {
		if dials.Add(1) == 1 {
			<-release
		}
		return transport.NewFake()
	}
	engine := failover.New(directory, st, bus, dial, slog.Default())

	first := make(chan transport.Transport, 1)
	go func() {
		first <- engine.Trigger(ctx, "conn-1", "old", nil)
	}()

	for !engine.IsInFlight("conn-1") {
		time.Sleep(time.Millisecond)
	}
	second := engine.Trigger(ctx, "conn-1", "old", nil)
	close(release)
	if second != nil {
		t.Fatal("expected coalesced second trigger to return nil")
	}

	select {
	case got := <-first:
		if got == nil {
			t.Fatal("expected the first trigger to succeed and return a transport")
		}
	case <-time.After(time.Second):
		t.Fatal("first trigger did not complete")
	}
}
