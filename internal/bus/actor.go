// Package bus composes every other internal package into the single
// MessageBus façade the spec's [CORE] module exposes (§5). Ordered,
// per-session delivery is implemented as a virtual actor per session —
// the same Virtual Cell shape the teacher's registry.Cell uses for
// per-user fan-out, adapted here from "one mailbox per connected user"
// to "one mailbox per causal session", since ordering and vector-clock
// inversion checks must serialize per session, not per user connection.
package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solconnect/messaging-core/internal/clock"
	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/store"
)

// inbound is one unit of work an actor's mailbox processes; it carries
// either a locally-originated send or a remotely-received frame so both
// paths go through the same serialized vector-clock bookkeeping.
type inbound struct {
	message    *model.Message
	fromRemote bool
	plaintext  string // set only for fromRemote chat deliveries
	done       chan error
}

// bufferedRemote pairs a buffered out-of-order message with the plaintext
// decrypted for it, so a later drain can still announce MessageReceived
// with content once the gap closes.
type bufferedRemote struct {
	message   *model.Message
	plaintext string
}

// ReorderWindow bounds how many out-of-order remote messages an actor
// buffers waiting for a causal predecessor before falling back to
// insertion order (spec §9's subscription-delivery reorder window).
const ReorderWindow = 32

// actor owns ordered processing for exactly one session. It mirrors
// registry.Cell: a buffered mailbox decouples callers from the
// serialized work loop, and an atomic last-activity timestamp lets the
// Bus's janitor reclaim idle sessions without taking the mailbox lock.
type actor struct {
	sessionID string
	mailbox   chan inbound
	st        store.Store
	bus       busPublisher
	localDevice string
	logger    *slog.Logger

	doneCh chan struct{}
	lastActivityUnix int64

	mu      sync.Mutex
	lastVC  model.VectorClock
	pending map[string]bufferedRemote // messageID -> buffered out-of-order remote write
}

// busPublisher is the narrow slice of eventbus.Bus the actor needs,
// kept as an interface so tests can substitute a recording fake.
type busPublisher interface {
	Publish(topic event.Topic, payload any) error
}

func newActor(sessionID, localDevice string, st store.Store, publisher busPublisher, mailboxSize int) *actor {
	a := &actor{
		sessionID:        sessionID,
		mailbox:          make(chan inbound, mailboxSize),
		st:               st,
		bus:              publisher,
		localDevice:      localDevice,
		logger:           slog.Default(),
		doneCh:           make(chan struct{}),
		lastActivityUnix: time.Now().Unix(),
		lastVC:           model.VectorClock{},
		pending:          make(map[string]bufferedRemote),
	}
	go a.loop()
	return a
}

func (a *actor) touch() {
	atomic.StoreInt64(&a.lastActivityUnix, time.Now().Unix())
}

func (a *actor) isIdle(timeout time.Duration) bool {
	return time.Since(time.Unix(atomic.LoadInt64(&a.lastActivityUnix), 0)) > timeout
}

// submit enqueues work and blocks for its result, propagating ctx
// cancellation to the caller without abandoning the enqueued work itself
// (the actor always finishes processing what it dequeued).
func (a *actor) submit(ctx context.Context, msg *model.Message, fromRemote bool) error {
	return a.submitWithPlaintext(ctx, msg, fromRemote, "")
}

// submitWithPlaintext is submit's full form: fromRemote chat deliveries
// carry the plaintext decrypted for them so persistAndPublishLocked can
// announce it once this message actually reaches the front of causal
// order (which may be later than the call to submit, if it arrived out
// of order and had to buffer).
func (a *actor) submitWithPlaintext(ctx context.Context, msg *model.Message, fromRemote bool, plaintext string) error {
	a.touch()
	work := inbound{message: msg, fromRemote: fromRemote, plaintext: plaintext, done: make(chan error, 1)}
	select {
	case a.mailbox <- work:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.doneCh:
		return errActorStopped
	}
	select {
	case err := <-work.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *actor) loop() {
	for {
		select {
		case <-a.doneCh:
			return
		case w := <-a.mailbox:
			w.done <- a.process(w)
		}
	}
}

// process applies the §4.1/§4.13 causal bookkeeping for one message: an
// incoming remote write is merged into the session's last-seen clock and
// rejected as an inversion if it does not advance; a locally-originated
// send is stamped with a freshly incremented clock.
func (a *actor) process(w inbound) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if w.fromRemote {
		return a.processRemoteLocked(w.message, w.plaintext)
	}

	w.message.VectorClock = clock.Increment(a.lastVC, a.localDevice)
	a.lastVC = w.message.VectorClock.Clone()
	return a.persistAndPublishLocked(w.message, "")
}

// processRemoteLocked applies or buffers one remotely-received message.
// Delivery requires msg's sender-device counter to be exactly one past
// what this actor last saw from that device (msg.Sender doubles as the
// originating device id, the same field bus.Send stamps with
// session.LocalDeviceID). A counter that jumps ahead is a gap: the
// message is buffered up to ReorderWindow entries and replayed once its
// predecessor lands; past that bound the gap is treated as unrecoverable
// and the message is applied out of order with a logged warning, per
// spec §9's reorder-window note.
func (a *actor) processRemoteLocked(msg *model.Message, plaintext string) error {
	// Inversion is checked against the sender's own counter, not ours:
	// a remote write whose originating device counter does not exceed
	// what we already recorded from that device is a replay or a stale
	// duplicate, never a legitimate new write.
	if clock.IsInversion(a.lastVC, msg.VectorClock, msg.Sender) {
		return &ErrClockInversion{SessionID: a.sessionID, MessageID: msg.ID}
	}

	if !a.isNextFromSenderLocked(msg) {
		if len(a.pending) >= ReorderWindow {
			a.logger.Warn("bus: reorder buffer overflow, applying message out of causal order",
				"session_id", a.sessionID, "message_id", msg.ID)
			a.lastVC = clock.Merge(a.lastVC, msg.VectorClock, a.localDevice)
			return a.persistAndPublishLocked(msg, plaintext)
		}
		a.pending[msg.ID] = bufferedRemote{message: msg, plaintext: plaintext}
		return nil
	}

	a.lastVC = clock.Merge(a.lastVC, msg.VectorClock, a.localDevice)
	if err := a.persistAndPublishLocked(msg, plaintext); err != nil {
		return err
	}
	return a.drainPendingLocked()
}

// isNextFromSenderLocked reports whether msg is the immediate causal
// successor for its sender device, the single-origin delivery condition
// spec §9 calls for.
func (a *actor) isNextFromSenderLocked(msg *model.Message) bool {
	return msg.VectorClock.Get(msg.Sender) == a.lastVC.Get(msg.Sender)+1
}

// drainPendingLocked repeatedly applies any buffered message that has
// become deliverable, in ascending message-id order for determinism,
// until a full pass applies nothing.
func (a *actor) drainPendingLocked() error {
	for {
		ids := make([]string, 0, len(a.pending))
		for id := range a.pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		applied := false
		for _, id := range ids {
			buffered := a.pending[id]
			if !a.isNextFromSenderLocked(buffered.message) {
				continue
			}
			delete(a.pending, id)
			a.lastVC = clock.Merge(a.lastVC, buffered.message.VectorClock, a.localDevice)
			if err := a.persistAndPublishLocked(buffered.message, buffered.plaintext); err != nil {
				return err
			}
			applied = true
		}
		if !applied {
			return nil
		}
	}
}

func (a *actor) persistAndPublishLocked(msg *model.Message, plaintext string) error {
	if err := a.st.PutMessage(context.Background(), msg); err != nil {
		return err
	}

	_ = a.bus.Publish(event.TopicStatusUpdate, event.StatusUpdate{
		MessageID: msg.ID,
		SessionID: a.sessionID,
		Status:    msg.Status.String(),
		At:        time.Now().UnixMilli(),
	})
	if plaintext != "" {
		_ = a.bus.Publish(event.TopicMessageReceived, event.MessageReceived{
			MessageID: msg.ID,
			SessionID: a.sessionID,
			Sender:    msg.Sender,
			Plaintext: plaintext,
			CreatedAt: msg.CreatedAt,
		})
	}
	return nil
}

func (a *actor) stop() {
	close(a.doneCh)
}

var errActorStopped = &ErrSessionClosed{}

// ErrSessionClosed reports that a session actor was stopped before its
// mailbox could be drained.
type ErrSessionClosed struct{ SessionID string }

func (e *ErrSessionClosed) Error() string { return "bus: session actor stopped: " + e.SessionID }

// ErrClockInversion reports a remote write whose vector clock does not
// causally advance past what this Core already recorded (spec §4.13).
type ErrClockInversion struct {
	SessionID string
	MessageID string
}

func (e *ErrClockInversion) Error() string {
	return "bus: clock inversion on session " + e.SessionID + " message " + e.MessageID
}
