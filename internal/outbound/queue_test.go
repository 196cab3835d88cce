package outbound_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/outbound"
	"github.com/solconnect/messaging-core/internal/store"
	"github.com/solconnect/messaging-core/internal/transport"
)

func encodeChatPayload(t *testing.T, messageID, sessionID string) []byte {
	t.Helper()
	frame, err := wire.Encode(wire.TypeChat, wire.Chat{MessageID: messageID, SessionID: sessionID})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestFlushSendsAndMarksSent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	msg := model.NewMessage("m1", "s1", "alice", "bob", model.ContentText, []byte("ct"), 1, model.VectorClock{"d1": 1})
	if err := st.PutMessage(ctx, msg); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}

	q := outbound.New(st, "test-breaker", nil)
	payload := encodeChatPayload(t, "m1", "s1")
	if err := q.Enqueue(ctx, &model.OutboundEntry{MessageID: "m1", SessionID: "s1", PayloadFrame: payload}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tr := transport.NewFake()
	_ = tr.Connect(ctx, "fake://relay")

	sent, err := q.Flush(ctx, tr, "s1")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}

	got, _ := st.GetMessage(ctx, "m1")
	if got.Status != model.StatusSent {
		t.Fatalf("expected StatusSent, got %v", got.Status)
	}
}

func TestFlushRequeuesOnSendFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	msg := model.NewMessage("m1", "s1", "alice", "bob", model.ContentText, []byte("ct"), 1, model.VectorClock{"d1": 1})
	_ = st.PutMessage(ctx, msg)

	q := outbound.New(st, "test-breaker-2", nil)
	payload := encodeChatPayload(t, "m1", "s1")
	_ = q.Enqueue(ctx, &model.OutboundEntry{MessageID: "m1", SessionID: "s1", PayloadFrame: payload})

	tr := transport.NewFake() // never connected: Send fails

	sent, err := q.Flush(ctx, tr, "s1")
	if err == nil {
		t.Fatal("expected Flush to report the send failure")
	}
	if sent != 0 {
		t.Fatalf("expected 0 sent, got %d", sent)
	}
	if st.OutboundLen(ctx, "s1") != 1 {
		t.Fatal("expected the failed entry to be requeued")
	}
}
