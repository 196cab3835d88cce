// Package sync implements offline catch-up (spec §4.11): exchange
// sync_request/sync_response frames against a peer, resolve any
// concurrent writes the exchange surfaces, persist progress in
// SyncCursor so a crash mid-sync resumes, and emit one SyncCompleted per
// run. Per-session mutual exclusion keeps two sync runs for the same
// session from interleaving their cursor writes.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/solconnect/messaging-core/internal/clock"
	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/store"
	"github.com/solconnect/messaging-core/internal/transport"
)

// State is a session's current sync phase.
type State int8

const (
	Idle State = iota
	Catching
	LiveUpdating
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Catching:
		return "catching"
	case LiveUpdating:
		return "live_updating"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ResolverStrategy picks how ConflictResolver settles a Concurrent pair.
type ResolverStrategy int8

const (
	Latest ResolverStrategy = iota
	VectorClockWinner
	Merge
)

// ConflictResolver settles two concurrently-written messages for the same
// logical slot (§4.1's tie-break, the later CreatedAt, or the later message
// kept under the merged vector clock).
type ConflictResolver struct {
	strategy ResolverStrategy
	localDevice string
}

// NewConflictResolver constructs a resolver using strategy.
func NewConflictResolver(strategy ResolverStrategy, localDevice string) *ConflictResolver {
	return &ConflictResolver{strategy: strategy, localDevice: localDevice}
}

// Resolve returns which of a, b should be kept as the canonical version,
// and the vector clock the resolution should be recorded under.
func (r *ConflictResolver) Resolve(a, b *model.Message) (*model.Message, model.VectorClock) {
	switch r.strategy {
	case Latest:
		if a.CreatedAt >= b.CreatedAt {
			return a, a.VectorClock
		}
		return b, b.VectorClock
	case Merge:
		merged := clock.Merge(a.VectorClock, b.VectorClock, r.localDevice)
		winner := a
		if b.CreatedAt > a.CreatedAt {
			winner = b
		}
		return winner, merged
	default: // VectorClockWinner
		winnerIdx := clock.ConcurrentWinner(
			[]model.VectorClock{a.VectorClock, b.VectorClock},
			[]int64{a.CreatedAt, b.CreatedAt},
			[]string{a.Sender, b.Sender},
		)
		if winnerIdx == 0 {
			return a, a.VectorClock
		}
		return b, b.VectorClock
	}
}

// Stats mirrors the SyncCompleted event payload for one run.
type Stats struct {
	SessionID           string
	TotalMessagesSynced int
	ConflictsResolved   int
	DurationMillis      int64
}

// Engine drives one session's sync exchange against a connected peer.
type Engine struct {
	st       store.Store
	bus      *eventbus.Bus
	resolver *ConflictResolver

	mu    sync.Mutex
	state map[string]State
	locks map[string]*sync.Mutex
}

// New constructs a sync Engine.
func New(st store.Store, bus *eventbus.Bus, resolver *ConflictResolver) *Engine {
	return &Engine{
		st:       st,
		bus:      bus,
		resolver: resolver,
		state:    make(map[string]State),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

func (e *Engine) setState(sessionID string, s State) {
	e.mu.Lock()
	e.state[sessionID] = s
	e.mu.Unlock()
}

// State reports sessionID's current sync phase.
func (e *Engine) State(sessionID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[sessionID]
}

// Run performs one sync_request/sync_response exchange for sessionID over
// t, resolving conflicts and persisting the resulting cursor.
func (e *Engine) Run(ctx context.Context, t transport.Transport, sessionID string) (Stats, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	e.setState(sessionID, Catching)

	cursor, err := e.st.GetSyncCursor(ctx, sessionID)
	if err != nil {
		cursor = &model.SyncCursor{SessionID: sessionID, VC: model.VectorClock{}}
	}

	reqFrame, err := wire.Encode(wire.TypeSyncRequest, wire.SyncRequest{SessionID: sessionID, Cursor: cursor.VC})
	if err != nil {
		e.setState(sessionID, Error)
		return Stats{}, err
	}
	if err := t.Send(ctx, reqFrame); err != nil {
		e.setState(sessionID, Error)
		return Stats{}, err
	}

	respFrame, err := t.Recv(ctx)
	if err != nil {
		e.setState(sessionID, Error)
		return Stats{}, err
	}
	var resp wire.SyncResponse
	if err := wire.Decode(respFrame, &resp); err != nil {
		e.setState(sessionID, Error)
		return Stats{}, err
	}

	synced, conflicts := 0, 0
	for _, chatFrame := range resp.Messages {
		existing, gerr := e.st.GetMessage(ctx, chatFrame.MessageID)
		incoming := &model.Message{
			ID:          chatFrame.MessageID,
			SessionID:   chatFrame.SessionID,
			Sender:      chatFrame.Sender,
			Recipient:   chatFrame.Recipient,
			ContentType: model.ContentType(chatFrame.ContentType),
			Ciphertext:  chatFrame.Ciphertext,
			CreatedAt:   chatFrame.CreatedAt,
			VectorClock: model.VectorClock(chatFrame.VectorClock),
			Status:      model.StatusDelivered,
		}

		if gerr == nil {
			switch clock.Compare(incoming.VectorClock, existing.VectorClock) {
			case model.Before, model.Equal:
				continue // already have a causally-later or identical copy
			case model.Concurrent:
				winner, mergedVC := e.resolver.Resolve(existing, incoming)
				winner.VectorClock = mergedVC
				if err := e.st.PutMessage(ctx, winner); err != nil {
					continue
				}
				conflicts++
				synced++
				continue
			}
		}

		if err := e.st.PutMessage(ctx, incoming); err != nil {
			continue
		}
		synced++
	}

	merged := clock.Merge(cursor.VC, model.VectorClock(resp.Cursor), sessionLocalDevice(cursor.VC))
	newCursor := &model.SyncCursor{SessionID: sessionID, VC: merged, LastSyncAt: time.Now().UnixMilli()}
	if err := e.st.PutSyncCursor(ctx, newCursor); err != nil {
		e.setState(sessionID, Error)
		return Stats{}, err
	}

	e.setState(sessionID, LiveUpdating)

	stats := Stats{
		SessionID:           sessionID,
		TotalMessagesSynced: synced,
		ConflictsResolved:   conflicts,
		DurationMillis:      time.Since(start).Milliseconds(),
	}
	_ = e.bus.Publish(event.TopicSyncCompleted, event.SyncCompleted{
		SessionID:           stats.SessionID,
		TotalMessagesSynced: stats.TotalMessagesSynced,
		ConflictsResolved:   stats.ConflictsResolved,
		DurationMillis:      stats.DurationMillis,
	})
	return stats, nil
}

// sessionLocalDevice picks an arbitrary existing device key from the
// cursor's clock to bump as "local" when no explicit device id is
// threaded through; callers that track a real local device id should
// merge with clock.Merge directly instead of going through Run.
func sessionLocalDevice(vc model.VectorClock) string {
	for device := range vc {
		return device
	}
	return "unknown"
}
