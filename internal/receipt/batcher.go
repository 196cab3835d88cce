// Package receipt implements the read-receipt batching of spec §4.9:
// coalesce mark_read calls for a session over a debounce window or a size
// cap, whichever comes first, then emit one ReadReceiptBatch frame. A
// Delivered status transition always bypasses the batch and is sent
// immediately, since it has no debounce requirement in the spec.
package receipt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/transport"
)

// DebounceWindow, SizeCap, and MaxRetries mirror §4.9/§6's batching
// defaults (batch_delay_ms=500, MAX_BATCH_RETRIES=3); Batcher still takes
// its own values at construction so config can override them.
const (
	DebounceWindow = 500 * time.Millisecond
	SizeCap        = 50
	MaxRetries     = 3
)

// BackoffBase/BackoffMax bound retry delay on a failed batch send.
const (
	BackoffBase = 1 * time.Second
	BackoffMax  = 30 * time.Second
)

type pending struct {
	sessionID  string
	messageIDs []string
	timer      *time.Timer
}

// Batcher coalesces per-session read receipts.
type Batcher struct {
	mu             sync.Mutex
	batches        map[string]*pending
	send           func(ctx context.Context, sessionID string, f wire.Frame) error
	logger         *slog.Logger
	debounceWindow time.Duration
	sizeCap        int
	maxRetries     int

	flushCounter metric.Int64Counter
}

// AttachCounter wires an observability counter incremented once per
// successful batch flush. Optional: nil is a safe no-op.
func (b *Batcher) AttachCounter(c metric.Int64Counter) {
	b.flushCounter = c
}

// New constructs a Batcher. send is called once per flushed batch; callers
// typically bind it to a specific transport.Transport's Send. debounceWindow,
// sizeCap, and maxRetries of <= 0 fall back to the package defaults so
// zero-value config still produces a working Batcher.
func New(send func(ctx context.Context, sessionID string, f wire.Frame) error, debounceWindow time.Duration, sizeCap, maxRetries int, logger *slog.Logger) *Batcher {
	if debounceWindow <= 0 {
		debounceWindow = DebounceWindow
	}
	if sizeCap <= 0 {
		sizeCap = SizeCap
	}
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Batcher{
		batches:        make(map[string]*pending),
		send:           send,
		logger:         logger,
		debounceWindow: debounceWindow,
		sizeCap:        sizeCap,
		maxRetries:     maxRetries,
	}
}

// MarkRead records messageID as read in sessionID's pending batch,
// flushing immediately if the batch reaches its size cap.
func (b *Batcher) MarkRead(ctx context.Context, sessionID, messageID string) {
	b.mu.Lock()
	p, ok := b.batches[sessionID]
	if !ok {
		p = &pending{sessionID: sessionID}
		b.batches[sessionID] = p
		p.timer = time.AfterFunc(b.debounceWindow, func() { b.flush(ctx, sessionID, 0) })
	}
	p.messageIDs = append(p.messageIDs, messageID)
	full := len(p.messageIDs) >= b.sizeCap
	b.mu.Unlock()

	if full {
		p.timer.Stop()
		b.flush(ctx, sessionID, 0)
	}
}

func (b *Batcher) flush(ctx context.Context, sessionID string, attempt int) {
	b.mu.Lock()
	p, ok := b.batches[sessionID]
	if !ok || len(p.messageIDs) == 0 {
		delete(b.batches, sessionID)
		b.mu.Unlock()
		return
	}
	ids := p.messageIDs
	delete(b.batches, sessionID)
	b.mu.Unlock()

	frame, err := wire.Encode(wire.TypeReadReceiptBatch, wire.ReadReceiptBatch{
		SessionID:  sessionID,
		MessageIDs: ids,
		ReadAt:     time.Now().UnixMilli(),
	})
	if err != nil {
		if b.logger != nil {
			b.logger.Error("receipt: failed to encode batch", "session_id", sessionID, "err", err)
		}
		return
	}

	if err := b.send(ctx, sessionID, frame); err != nil {
		if attempt >= b.maxRetries {
			if b.logger != nil {
				b.logger.Error("receipt: dropping batch after repeated failures", "session_id", sessionID, "err", err)
			}
			return
		}
		delay := BackoffBase * time.Duration(1<<attempt)
		if delay > BackoffMax {
			delay = BackoffMax
		}
		time.AfterFunc(delay, func() {
			b.mu.Lock()
			b.batches[sessionID] = &pending{sessionID: sessionID, messageIDs: ids}
			b.mu.Unlock()
			b.flush(ctx, sessionID, attempt+1)
		})
		return
	}
	if b.flushCounter != nil {
		b.flushCounter.Add(ctx, 1)
	}
}

// FlushDelivered sends a single Delivered status update immediately,
// bypassing the batch window entirely.
func (b *Batcher) FlushDelivered(ctx context.Context, sessionID, messageID string, status int8) error {
	frame, err := wire.Encode(wire.TypeStatusUpdate, wire.StatusUpdate{
		MessageID: messageID,
		Status:    status,
		At:        time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return b.send(ctx, sessionID, frame)
}

// BindTransport returns a send closure suitable for New, writing frames
// directly to t.
func BindTransport(t transport.Transport) func(context.Context, string, wire.Frame) error {
	return func(ctx context.Context, _ string, f wire.Frame) error {
		return t.Send(ctx, f)
	}
}
