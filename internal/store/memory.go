package store

import (
	"context"
	"sort"
	"sync"

	"github.com/solconnect/messaging-core/internal/domain/model"
)

// Memory is the in-process Store implementation. It is the only Store this
// module ships; every table is a plain map guarded by one mutex, which is
// sufficient given the Core's per-process, per-session actor concurrency
// model (internal/bus serializes writes per session already).
type Memory struct {
	mu sync.Mutex

	sessions map[string]*model.Session
	messages map[string]*model.Message
	outbound map[string][]*model.OutboundEntry // sessionID -> queue
	reactions map[string][]*model.ReactionEdge // messageID -> edges
	cursors  map[string]*model.SyncCursor
	relays   map[string]*model.RelayEndpoint
}

var _ Store = (*Memory)(nil)

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]*model.Session),
		messages:  make(map[string]*model.Message),
		outbound:  make(map[string][]*model.OutboundEntry),
		reactions: make(map[string][]*model.ReactionEdge),
		cursors:   make(map[string]*model.SyncCursor),
		relays:    make(map[string]*model.RelayEndpoint),
	}
}

func (m *Memory) PutSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &Error{Kind: NotFound, Op: "GetSession", Key: id}
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) PutMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.VectorClock = msg.VectorClock.Clone()
	m.messages[msg.ID] = &cp
	return nil
}

func (m *Memory) GetMessage(_ context.Context, id string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, &Error{Kind: NotFound, Op: "GetMessage", Key: id}
	}
	cp := *msg
	cp.VectorClock = msg.VectorClock.Clone()
	return &cp, nil
}

func (m *Memory) ListMessagesBySession(_ context.Context, sessionID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			cp := *msg
			cp.VectorClock = msg.VectorClock.Clone()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *Memory) UpdateMessageStatus(_ context.Context, id string, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return &Error{Kind: NotFound, Op: "UpdateMessageStatus", Key: id}
	}
	if !msg.Advance(status) {
		return &Error{Kind: Conflict, Op: "UpdateMessageStatus", Key: id}
	}
	return nil
}

func (m *Memory) EnqueueOutbound(_ context.Context, e *model.OutboundEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	q := append(m.outbound[e.SessionID], &cp)
	sort.SliceStable(q, func(i, j int) bool {
		if q[i].Priority != q[j].Priority {
			return q[i].Priority > q[j].Priority
		}
		return q[i].EnqueuedAt < q[j].EnqueuedAt
	})
	m.outbound[e.SessionID] = q
	return nil
}

func (m *Memory) DequeueOutbound(_ context.Context, sessionID string) (*model.OutboundEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.outbound[sessionID]
	if len(q) == 0 {
		return nil, false, nil
	}
	head := q[0]
	m.outbound[sessionID] = q[1:]
	cp := *head
	return &cp, true, nil
}

func (m *Memory) ListOutbound(_ context.Context, sessionID string) ([]*model.OutboundEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.outbound[sessionID]
	out := make([]*model.OutboundEntry, len(q))
	for i, e := range q {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) RemoveOutbound(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID, q := range m.outbound {
		for i, e := range q {
			if e.MessageID == messageID {
				m.outbound[sessionID] = append(q[:i], q[i+1:]...)
				return nil
			}
		}
	}
	return &Error{Kind: NotFound, Op: "RemoveOutbound", Key: messageID}
}

func (m *Memory) OutboundLen(_ context.Context, sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbound[sessionID])
}

func (m *Memory) PutReaction(_ context.Context, r *model.ReactionEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.reactions[r.MessageID]
	for i, e := range edges {
		if e.ReactorIdentity == r.ReactorIdentity && e.Emoji == r.Emoji {
			cp := *r
			edges[i] = &cp
			m.reactions[r.MessageID] = edges
			return nil
		}
	}
	cp := *r
	m.reactions[r.MessageID] = append(edges, &cp)
	return nil
}

func (m *Memory) RemoveReaction(_ context.Context, messageID, reactor, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.reactions[messageID]
	for i, e := range edges {
		if e.ReactorIdentity == reactor && e.Emoji == emoji {
			m.reactions[messageID] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return &Error{Kind: NotFound, Op: "RemoveReaction", Key: messageID}
}

func (m *Memory) ListReactions(_ context.Context, messageID string) ([]*model.ReactionEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.reactions[messageID]
	out := make([]*model.ReactionEdge, len(edges))
	for i, e := range edges {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) PutSyncCursor(_ context.Context, c *model.SyncCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.VC = c.VC.Clone()
	m.cursors[c.SessionID] = &cp
	return nil
}

func (m *Memory) GetSyncCursor(_ context.Context, sessionID string) (*model.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[sessionID]
	if !ok {
		return nil, &Error{Kind: NotFound, Op: "GetSyncCursor", Key: sessionID}
	}
	cp := *c
	cp.VC = c.VC.Clone()
	return &cp, nil
}

func (m *Memory) PutRelay(_ context.Context, r *model.RelayEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.relays[r.ID] = &cp
	return nil
}

func (m *Memory) ListRelays(_ context.Context) ([]*model.RelayEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.RelayEndpoint, 0, len(m.relays))
	for _, r := range m.relays {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
