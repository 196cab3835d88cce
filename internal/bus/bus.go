package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"go.opentelemetry.io/otel/metric"

	"github.com/solconnect/messaging-core/internal/cipher"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/failover"
	"github.com/solconnect/messaging-core/internal/outbound"
	"github.com/solconnect/messaging-core/internal/reaction"
	"github.com/solconnect/messaging-core/internal/receipt"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/store"
	syncpkg "github.com/solconnect/messaging-core/internal/sync"
	"github.com/solconnect/messaging-core/internal/transport"
)

// MailboxSize bounds each session actor's buffered inbox, mirroring the
// teacher's registry.Cell default.
const MailboxSize = 1024

// EvictionInterval and IdleTimeout control the janitor sweep that reclaims
// session actors with no recent activity (adapted from registry.Hub).
const (
	EvictionInterval = time.Minute
	IdleTimeout      = 10 * time.Minute
)

// Bus is the MessageBus façade: every exported method corresponds to one
// [CORE] operation in spec §5.
type Bus struct {
	st         store.Store
	events     *eventbus.Bus
	reactions  *reaction.Engine
	syncEngine *syncpkg.Engine
	directory  *relay.Directory
	failoverEngine *failover.Engine
	logger     *slog.Logger
	localDevice string

	transportMu sync.RWMutex
	transport   transport.Transport
	connectionID string
	listenCancel context.CancelFunc

	outboundQueues sync.Map // sessionID -> *outbound.Queue
	receiptBatcher *receipt.Batcher
	ciphers    sync.Map // sessionID -> cipher.Cipher

	actorsMu sync.Map // sessionID -> *actor
	stopCh   chan struct{}

	messagesSentCounter   metric.Int64Counter
	queueDepthCounter     metric.Int64UpDownCounter
	decryptFailureCounter metric.Int64Counter
}

// AttachObservability wires the Core's otel counters into this Bus.
// Any argument may be nil and is then a safe no-op.
func (b *Bus) AttachObservability(messagesSent metric.Int64Counter, queueDepth metric.Int64UpDownCounter, decryptFailures metric.Int64Counter) {
	b.messagesSentCounter = messagesSent
	b.queueDepthCounter = queueDepth
	b.decryptFailureCounter = decryptFailures
}

// ReceiptConfig threads spec §4.9/§6's configurable read-receipt batching
// parameters from config.Config.Receipt into the Batcher New constructs;
// a zero-value ReceiptConfig falls back to package receipt's defaults.
type ReceiptConfig struct {
	DebounceWindow time.Duration
	SizeCap        int
	MaxRetries     int
}

// New wires every dependency into one Bus. It binds no Transport; the
// caller dials a relay and hands the connected Transport to Init.
func New(
	st store.Store,
	events *eventbus.Bus,
	reactions *reaction.Engine,
	syncEngine *syncpkg.Engine,
	directory *relay.Directory,
	failoverEngine *failover.Engine,
	localDevice string,
	receiptCfg ReceiptConfig,
	logger *slog.Logger,
) *Bus {
	b := &Bus{
		st:             st,
		events:         events,
		reactions:      reactions,
		syncEngine:     syncEngine,
		directory:      directory,
		failoverEngine: failoverEngine,
		logger:         logger,
		localDevice:    localDevice,
		stopCh:         make(chan struct{}),
	}
	b.receiptBatcher = receipt.New(func(ctx context.Context, _ string, f wire.Frame) error {
		return b.sendFrame(ctx, f)
	}, receiptCfg.DebounceWindow, receiptCfg.SizeCap, receiptCfg.MaxRetries, logger)
	go b.runEvictor()
	return b
}

// Init binds t as the active transport, registers connectionID for
// health/failover bookkeeping, and starts a background Listen loop over
// t. A prior Init's Listen loop (e.g. the connection failover just
// replaced) is cancelled first.
func (b *Bus) Init(t transport.Transport, connectionID string) {
	b.transportMu.Lock()
	if b.listenCancel != nil {
		b.listenCancel()
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	b.transport = t
	b.connectionID = connectionID
	b.listenCancel = cancel
	b.transportMu.Unlock()

	go func() {
		if err := b.Listen(listenCtx, t); err != nil && b.logger != nil {
			b.logger.Warn("bus: listen loop exited", "connection_id", connectionID, "err", err)
		}
	}()
}

func (b *Bus) activeTransport() transport.Transport {
	b.transportMu.RLock()
	defer b.transportMu.RUnlock()
	return b.transport
}

func (b *Bus) sendFrame(ctx context.Context, f wire.Frame) error {
	t := b.activeTransport()
	if t == nil {
		return &ErrNotInitialized{}
	}
	return t.Send(ctx, f)
}

func (b *Bus) actorFor(sessionID string) *actor {
	if v, ok := b.actorsMu.Load(sessionID); ok {
		return v.(*actor)
	}
	a := newActor(sessionID, b.localDevice, b.st, b.events, MailboxSize)
	actual, _ := b.actorsMu.LoadOrStore(sessionID, a)
	return actual.(*actor)
}

func (b *Bus) cipherFor(session *model.Session) (cipher.Cipher, error) {
	if v, ok := b.ciphers.Load(session.ID); ok {
		return v.(cipher.Cipher), nil
	}
	c, err := cipher.New(session.SharedKey)
	if err != nil {
		return nil, err
	}
	b.ciphers.Store(session.ID, c)
	return c, nil
}

func (b *Bus) outboundFor(sessionID string) *outbound.Queue {
	if v, ok := b.outboundQueues.Load(sessionID); ok {
		return v.(*outbound.Queue)
	}
	q := outbound.New(b.st, "breaker-"+sessionID, b.logger)
	actual, _ := b.outboundQueues.LoadOrStore(sessionID, q)
	return actual.(*outbound.Queue)
}

// Send encrypts plaintext under session's SharedKey, assigns an ordered
// vector clock via the session's actor, persists it, and enqueues it on
// the outbound queue.
func (b *Bus) Send(ctx context.Context, sessionID, plaintext string, priority model.Priority) (*model.Message, error) {
	session, err := b.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c, err := b.cipherFor(session)
	if err != nil {
		return nil, err
	}
	ciphertext, err := c.Seal([]byte(plaintext), []byte(sessionID))
	if err != nil {
		return nil, err
	}

	msg := model.NewMessage(
		model.NewMessageID(session.LocalDeviceID, time.Now().UnixMilli(), randSuffix()),
		sessionID, session.LocalDeviceID, session.PeerIdentity,
		model.ContentText, ciphertext, time.Now().UnixMilli(), model.VectorClock{},
	)

	a := b.actorFor(sessionID)
	if err := a.submit(ctx, msg, false); err != nil {
		return nil, err
	}

	frame, err := wire.Encode(wire.TypeChat, wire.Chat{
		MessageID: msg.ID, SessionID: sessionID, Sender: msg.Sender, Recipient: msg.Recipient,
		ContentType: int8(msg.ContentType), Ciphertext: msg.Ciphertext, CreatedAt: msg.CreatedAt,
		VectorClock: msg.VectorClock,
	})
	if err != nil {
		return msg, err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return msg, err
	}

	if err := b.outboundFor(sessionID).Enqueue(ctx, &model.OutboundEntry{
		MessageID: msg.ID, SessionID: sessionID, Priority: priority,
		PayloadFrame: payload, EnqueuedAt: time.Now().UnixMilli(),
	}); err != nil {
		return msg, err
	}
	if b.queueDepthCounter != nil {
		b.queueDepthCounter.Add(ctx, 1)
	}
	return msg, nil
}

// ProcessQueue flushes sessionID's outbound queue over the active
// Transport, triggering a FailoverEngine run if the send fails outright.
func (b *Bus) ProcessQueue(ctx context.Context, sessionID string) (int, error) {
	t := b.activeTransport()
	if t == nil {
		return 0, &ErrNotInitialized{}
	}
	sent, err := b.outboundFor(sessionID).Flush(ctx, t, sessionID)
	if sent > 0 && b.messagesSentCounter != nil {
		b.messagesSentCounter.Add(ctx, int64(sent))
	}
	if sent > 0 && b.queueDepthCounter != nil {
		b.queueDepthCounter.Add(ctx, int64(-sent))
	}
	if err != nil && b.failoverEngine != nil {
		b.transportMu.RLock()
		connID := b.connectionID
		b.transportMu.RUnlock()
		if newTransport := b.failoverEngine.Trigger(ctx, connID, "", []string{sessionID}); newTransport != nil {
			b.Init(newTransport, connID)
		}
	}
	return sent, err
}

// MarkRead records messageID as read in sessionID, coalesced by the
// ReadReceiptBatcher.
func (b *Bus) MarkRead(ctx context.Context, sessionID, messageID string) error {
	if err := b.st.UpdateMessageStatus(ctx, messageID, model.StatusRead); err != nil {
		return err
	}
	b.receiptBatcher.MarkRead(ctx, sessionID, messageID)
	return nil
}

// UpdateStatus advances one message's status and, for Delivered, bypasses
// the batcher to notify the peer immediately.
func (b *Bus) UpdateStatus(ctx context.Context, sessionID, messageID string, status model.Status) error {
	if err := b.st.UpdateMessageStatus(ctx, messageID, status); err != nil {
		return err
	}
	if status == model.StatusDelivered {
		return b.receiptBatcher.FlushDelivered(ctx, sessionID, messageID, int8(status))
	}
	return nil
}

// BatchUpdateStatus applies UpdateStatus to every message id in ids,
// collecting and returning the first error encountered while still
// attempting every update.
func (b *Bus) BatchUpdateStatus(ctx context.Context, sessionID string, ids []string, status model.Status) error {
	var firstErr error
	for _, id := range ids {
		if err := b.UpdateStatus(ctx, sessionID, id, status); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns one message's current lifecycle status.
func (b *Bus) Status(ctx context.Context, messageID string) (model.Status, error) {
	msg, err := b.st.GetMessage(ctx, messageID)
	if err != nil {
		return 0, err
	}
	return msg.Status, nil
}

// ToggleReaction toggles reactor's emoji reaction on messageID.
func (b *Bus) ToggleReaction(ctx context.Context, sessionID, messageID, reactor, emoji string) (bool, error) {
	return b.reactions.Toggle(ctx, sessionID, messageID, reactor, emoji)
}

// RecentReactionsFor returns reactor's recent_for(reactor, limit) view: the
// emoji they've used most recently, newest first.
func (b *Bus) RecentReactionsFor(reactor string, limit int) []reaction.RecentReaction {
	return b.reactions.RecentFor(reactor, limit)
}

// Sync runs one sync exchange for sessionID over the active Transport.
func (b *Bus) Sync(ctx context.Context, sessionID string) (syncpkg.Stats, error) {
	t := b.activeTransport()
	if t == nil {
		return syncpkg.Stats{}, &ErrNotInitialized{}
	}
	return b.syncEngine.Run(ctx, t, sessionID)
}

// Export returns every persisted message for sessionID, newest last, for
// client-side backup.
func (b *Bus) Export(ctx context.Context, sessionID string) ([]*model.Message, error) {
	return b.st.ListMessagesBySession(ctx, sessionID)
}

// Import restores previously exported messages into the Store verbatim,
// without re-running clock bookkeeping (the caller is trusted to have
// exported a causally consistent set).
func (b *Bus) Import(ctx context.Context, messages []*model.Message) error {
	for _, m := range messages {
		if err := b.st.PutMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect closes the active Transport and stops its Listen loop.
// Session actors keep running and still accept work; Shutdown is what
// stops them.
func (b *Bus) Disconnect() error {
	b.transportMu.Lock()
	t := b.transport
	if b.listenCancel != nil {
		b.listenCancel()
		b.listenCancel = nil
	}
	b.transportMu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// Shutdown stops every session actor and the janitor loop.
func (b *Bus) Shutdown() {
	_ = b.Disconnect()
	close(b.stopCh)
	b.actorsMu.Range(func(_, v any) bool {
		v.(*actor).stop()
		return true
	})
}

func (b *Bus) runEvictor() {
	ticker := time.NewTicker(EvictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.actorsMu.Range(func(key, v any) bool {
				a := v.(*actor)
				if a.isIdle(IdleTimeout) {
					a.stop()
					b.actorsMu.Delete(key)
				}
				return true
			})
		}
	}
}

// ErrNotInitialized reports a Bus operation attempted before Init bound a
// Transport.
type ErrNotInitialized struct{}

func (e *ErrNotInitialized) Error() string { return "bus: not initialized with a transport" }

// randSuffix supplies the random component of a message id (spec §3's
// message_id format) as a fresh ULID: a millisecond timestamp followed by
// random entropy. Each call builds its own entropy source, so ids sort by
// creation time only as far as the wall clock does.
func randSuffix() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return ulid.MustNew(ulid.Now(), entropy).String()
	}
	return id.String()
}
