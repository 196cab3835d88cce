// Package failover drives relay switching within the spec's sub-500ms
// budget (§4.7): when the active connection is judged unhealthy, move
// through Preserving -> Disconnecting -> Restoring -> Replaying and land
// on Done or Failed, publishing exactly one FailoverCompleted per run.
// Concurrent triggers for the same connection coalesce onto the run
// already in flight, the same single-flight shape the teacher's Hub uses
// LoadOrStore for idempotent Cell registration.
package failover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/store"
	"github.com/solconnect/messaging-core/internal/transport"
)

// Phase is one step of a failover run.
type Phase int8

const (
	Idle Phase = iota
	Preserving
	Disconnecting
	Restoring
	Replaying
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Preserving:
		return "preserving"
	case Disconnecting:
		return "disconnecting"
	case Restoring:
		return "restoring"
	case Replaying:
		return "replaying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer connects a fresh transport.Transport to an endpoint; injected so
// tests can substitute transport.Fake instances without a real socket.
type Dialer func() transport.Transport

// Engine runs one failover at a time per active connection id.
type Engine struct {
	directory *relay.Directory
	store     store.Store
	bus       *eventbus.Bus
	dial      Dialer
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]struct{} // connectionID -> in-flight marker

	failoverCounter metric.Int64Counter
	tracer          trace.Tracer
}

// AttachCounter wires an observability counter so every finished run is
// reflected in the Core's metrics surface. Optional: nil is a safe no-op.
func (e *Engine) AttachCounter(c metric.Int64Counter) {
	e.failoverCounter = c
}

// AttachTracer wires a span tracer so each run appears in the Core's
// trace surface alongside the elapsed-time metric. Optional: with a nil
// tracer Trigger starts no span.
func (e *Engine) AttachTracer(t trace.Tracer) {
	e.tracer = t
}

// New constructs a failover Engine.
func New(directory *relay.Directory, st store.Store, bus *eventbus.Bus, dial Dialer, logger *slog.Logger) *Engine {
	return &Engine{
		directory: directory,
		store:     st,
		bus:       bus,
		dial:      dial,
		logger:    logger,
		running:   make(map[string]struct{}),
	}
}

// Trigger runs one failover for connectionID away from failedEndpointID
// and returns the newly connected transport. It counts the entries queued
// for outboundSessionIDs for the FailoverCompleted event; it sends none of
// them, and they stay in the Store for the caller's next flush over the
// returned transport. A Trigger already in flight for connectionID is a no-op;
// the caller observes the eventual FailoverCompleted on the bus instead.
func (e *Engine) Trigger(ctx context.Context, connectionID, failedEndpointID string, outboundSessionIDs []string) transport.Transport {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "failover.trigger",
			trace.WithAttributes(attribute.String("connection_id", connectionID)))
		defer span.End()
	}

	e.mu.Lock()
	if _, inFlight := e.running[connectionID]; inFlight {
		e.mu.Unlock()
		return nil
	}
	e.running[connectionID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, connectionID)
		e.mu.Unlock()
	}()

	start := time.Now()
	phase := Preserving

	preserved := e.countPreserved(ctx, outboundSessionIDs)

	phase = Disconnecting
	exclude := map[string]struct{}{failedEndpointID: {}}

	phase = Restoring
	endpoint, err := e.directory.Select(exclude)
	if err != nil {
		e.finish(start, failedEndpointID, "", 0, preserved, phase, Failed)
		return nil
	}

	newTransport := e.dial()
	if err := newTransport.Connect(ctx, endpoint.URL); err != nil {
		e.finish(start, failedEndpointID, endpoint.ID, 0, preserved, phase, Failed)
		return nil
	}

	phase = Replaying
	replayed := e.replay(ctx, newTransport, outboundSessionIDs)

	e.finish(start, failedEndpointID, endpoint.ID, preserved-replayed, preserved, phase, Done)
	return newTransport
}

func (e *Engine) countPreserved(ctx context.Context, sessionIDs []string) int {
	total := 0
	for _, sid := range sessionIDs {
		total += e.store.OutboundLen(ctx, sid)
	}
	return total
}

// replay re-enqueues nothing (the outbound queue already persists across
// the swap) and simply reports how many entries the new transport will
// see flushed to it by OutboundQueue once state flips back to Connected.
func (e *Engine) replay(ctx context.Context, _ transport.Transport, sessionIDs []string) int {
	total := 0
	for _, sid := range sessionIDs {
		entries, err := e.store.ListOutbound(ctx, sid)
		if err != nil {
			continue
		}
		total += len(entries)
	}
	return total
}

func (e *Engine) finish(start time.Time, oldEndpointID, newEndpointID string, lost, preserved int, phase, outcome Phase) {
	elapsed := time.Since(start)
	if e.logger != nil {
		e.logger.Info("failover finished", "outcome", outcome, "elapsed_ms", elapsed.Milliseconds(), "last_phase", phase)
	}
	err := e.bus.Publish(event.TopicFailoverCompleted, event.FailoverCompleted{
		OldEndpointID:     oldEndpointID,
		NewEndpointID:     newEndpointID,
		ElapsedMillis:     elapsed.Milliseconds(),
		MessagesPreserved: preserved - lost,
		MessagesLost:      lost,
	})
	if err != nil && e.logger != nil {
		e.logger.Warn("failover: failed to publish completion event", "err", err)
	}
	if e.failoverCounter != nil {
		e.failoverCounter.Add(context.Background(), 1)
	}
}

// IsInFlight reports whether a failover is currently running for
// connectionID, used by MessageBus to decide whether to suppress a
// redundant Trigger call.
func (e *Engine) IsInFlight(connectionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[connectionID]
	return ok
}
