package observability_test

import (
	"context"
	"testing"

	"github.com/solconnect/messaging-core/internal/observability"
)

func TestNewProvidesLoggerAndCounters(t *testing.T) {
	p, err := observability.New("solconnect-messaging-core-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Logger == nil {
		t.Fatal("expected non-nil bridged logger")
	}
	if p.Tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
	p.Counters.MessagesSent.Add(context.Background(), 1)
	p.Counters.QueueDepth.Add(context.Background(), 3)

	_, span := p.Tracer.Start(context.Background(), "test-span")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
