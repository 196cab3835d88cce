// Package store defines the persistence boundary for the Core (spec §6):
// sessions, messages, the outbound queue, reaction edges, sync cursors,
// and known relay endpoints. Memory is the only implementation shipped
// here — durability to disk or a real database is explicitly a
// Non-goal of the spec — but every method is already transactional in
// shape (guarded by a single mutex, never partially applied) so a future
// SQL-backed Store can satisfy the same interface without touching a
// caller.
package store

import (
	"context"

	"github.com/solconnect/messaging-core/internal/domain/model"
)

// Store is the capability every higher-level component depends on for
// persistence. All methods are safe for concurrent use.
type Store interface {
	PutSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)

	PutMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessagesBySession(ctx context.Context, sessionID string) ([]*model.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, status model.Status) error

	EnqueueOutbound(ctx context.Context, e *model.OutboundEntry) error
	DequeueOutbound(ctx context.Context, sessionID string) (*model.OutboundEntry, bool, error)
	ListOutbound(ctx context.Context, sessionID string) ([]*model.OutboundEntry, error)
	RemoveOutbound(ctx context.Context, messageID string) error
	OutboundLen(ctx context.Context, sessionID string) int

	PutReaction(ctx context.Context, r *model.ReactionEdge) error
	RemoveReaction(ctx context.Context, messageID, reactor, emoji string) error
	ListReactions(ctx context.Context, messageID string) ([]*model.ReactionEdge, error)

	PutSyncCursor(ctx context.Context, c *model.SyncCursor) error
	GetSyncCursor(ctx context.Context, sessionID string) (*model.SyncCursor, error)

	PutRelay(ctx context.Context, r *model.RelayEndpoint) error
	ListRelays(ctx context.Context) ([]*model.RelayEndpoint, error)
}
