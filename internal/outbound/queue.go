// Package outbound implements the per-session durable send queue of spec
// §4.4: priority- and enqueued-at-ordered delivery, exponential backoff on
// failure, and a sony/gobreaker circuit breaker in front of every
// Transport.Send so a degrading relay trips the breaker before the queue
// wastes further attempts on it.
package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/store"
	"github.com/solconnect/messaging-core/internal/transport"
)

// MaxSize bounds how many entries a single session's queue holds before
// the oldest low-priority entry is evicted (spec §4.4 max_size).
const MaxSize = 1000

// BackoffBase and BackoffMax bound the exponential retry delay applied to
// a failed send: base * 2^attempts, capped at max.
const (
	BackoffBase = 500 * time.Millisecond
	BackoffMax  = 60 * time.Second
)

// ErrQueueFull is returned by Enqueue when a session's queue is at MaxSize
// and holds no low-priority entry to evict.
var ErrQueueFull = errors.New("outbound: queue full")

// Queue is the durable, per-session send queue backed by store.Store and
// guarded by its own gobreaker.CircuitBreaker.
type Queue struct {
	st     store.Store
	logger *slog.Logger
	cb     *gobreaker.CircuitBreaker
}

// New constructs a Queue. breakerName tags the circuit breaker's metrics;
// every Queue owns a separate breaker, so each one trips independently.
func New(st store.Store, breakerName string, logger *slog.Logger) *Queue {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Queue{st: st, logger: logger, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Enqueue appends entry to its session's queue. If the queue is already at
// MaxSize it first evicts the oldest low-priority entry, or returns
// ErrQueueFull when there is none.
func (q *Queue) Enqueue(ctx context.Context, entry *model.OutboundEntry) error {
	if q.st.OutboundLen(ctx, entry.SessionID) >= MaxSize {
		entries, err := q.st.ListOutbound(ctx, entry.SessionID)
		if err != nil {
			return ErrQueueFull
		}
		var victim *model.OutboundEntry
		for _, e := range entries {
			if e.Priority == model.PriorityLow && (victim == nil || e.EnqueuedAt < victim.EnqueuedAt) {
				victim = e
			}
		}
		if victim == nil || q.st.RemoveOutbound(ctx, victim.MessageID) != nil {
			return ErrQueueFull
		}
	}
	return q.st.EnqueueOutbound(ctx, entry)
}

// Flush drains sessionID's queue over t, stopping at the first failure
// (leaving the remainder queued) or when the queue empties. Each failed
// send is re-enqueued with Attempts incremented and NextAttemptAt pushed
// out by exponential backoff.
func (q *Queue) Flush(ctx context.Context, t transport.Transport, sessionID string) (sent int, err error) {
	for {
		entry, ok, derr := q.st.DequeueOutbound(ctx, sessionID)
		if derr != nil {
			return sent, derr
		}
		if !ok {
			return sent, nil
		}

		if entry.NextAttemptAt > time.Now().UnixMilli() {
			_ = q.st.EnqueueOutbound(ctx, entry)
			return sent, nil
		}

		var frame wire.Frame
		if uerr := json.Unmarshal(entry.PayloadFrame, &frame); uerr != nil {
			entry.Attempts++
			entry.NextAttemptAt = time.Now().Add(backoff(entry.Attempts)).UnixMilli()
			_ = q.st.EnqueueOutbound(ctx, entry)
			return sent, uerr
		}

		_, cbErr := q.cb.Execute(func() (any, error) {
			return nil, t.Send(ctx, frame)
		})

		if cbErr != nil {
			entry.Attempts++
			entry.NextAttemptAt = time.Now().Add(backoff(entry.Attempts)).UnixMilli()
			_ = q.st.EnqueueOutbound(ctx, entry)
			return sent, cbErr
		}

		sent++
		if err := q.st.UpdateMessageStatus(ctx, entry.MessageID, model.StatusSent); err != nil && q.logger != nil {
			q.logger.Warn("outbound: failed to mark message sent", "message_id", entry.MessageID, "err", err)
		}
	}
}

func backoff(attempts int) time.Duration {
	d := BackoffBase
	for i := 0; i < attempts && d < BackoffMax; i++ {
		d *= 2
	}
	if d > BackoffMax {
		d = BackoffMax
	}
	return d
}

// Len reports how many entries are queued for sessionID.
func (q *Queue) Len(ctx context.Context, sessionID string) int {
	return q.st.OutboundLen(ctx, sessionID)
}
