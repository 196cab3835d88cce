package store_test

import (
	"context"
	"testing"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/store"
)

func TestMessageStatusTransition(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	msg := model.NewMessage("msg_1", "sess_1", "alice", "bob", model.ContentText, []byte("ct"), 100, model.VectorClock{"d1": 1})
	if err := s.PutMessage(ctx, msg); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}

	if err := s.UpdateMessageStatus(ctx, "msg_1", model.StatusSent); err != nil {
		t.Fatalf("UpdateMessageStatus Sent: %v", err)
	}

	if err := s.UpdateMessageStatus(ctx, "msg_1", model.StatusQueued); err == nil {
		t.Fatal("expected error reverting status to Queued")
	}

	got, err := s.GetMessage(ctx, "msg_1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Status != model.StatusSent {
		t.Fatalf("expected StatusSent, got %v", got.Status)
	}
}

func TestOutboundOrderedByPriorityThenEnqueuedAt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	entries := []*model.OutboundEntry{
		{MessageID: "m1", SessionID: "s1", Priority: model.PriorityNormal, EnqueuedAt: 10},
		{MessageID: "m2", SessionID: "s1", Priority: model.PriorityHigh, EnqueuedAt: 20},
		{MessageID: "m3", SessionID: "s1", Priority: model.PriorityNormal, EnqueuedAt: 5},
	}
	for _, e := range entries {
		if err := s.EnqueueOutbound(ctx, e); err != nil {
			t.Fatalf("EnqueueOutbound: %v", err)
		}
	}

	first, ok, err := s.DequeueOutbound(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("DequeueOutbound: %v ok=%v", err, ok)
	}
	if first.MessageID != "m2" {
		t.Fatalf("expected high priority m2 first, got %s", first.MessageID)
	}

	second, _, _ := s.DequeueOutbound(ctx, "s1")
	if second.MessageID != "m3" {
		t.Fatalf("expected earlier-enqueued m3 second, got %s", second.MessageID)
	}
}

func TestReactionUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	edge := &model.ReactionEdge{MessageID: "m1", ReactorIdentity: "alice", Emoji: "👍", CreatedAt: 1}
	if err := s.PutReaction(ctx, edge); err != nil {
		t.Fatalf("PutReaction: %v", err)
	}
	edge.CreatedAt = 2
	if err := s.PutReaction(ctx, edge); err != nil {
		t.Fatalf("PutReaction upsert: %v", err)
	}

	edges, err := s.ListReactions(ctx, "m1")
	if err != nil || len(edges) != 1 {
		t.Fatalf("expected exactly one reaction edge after upsert, got %d err=%v", len(edges), err)
	}

	if err := s.RemoveReaction(ctx, "m1", "alice", "👍"); err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	edges, _ = s.ListReactions(ctx, "m1")
	if len(edges) != 0 {
		t.Fatalf("expected no reactions after removal, got %d", len(edges))
	}
}
