package sync_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/store"
	syncpkg "github.com/solconnect/messaging-core/internal/sync"
	"github.com/solconnect/messaging-core/internal/transport"
)

func TestRunMergesNewMessages(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	resolver := syncpkg.NewConflictResolver(syncpkg.Latest, "d1")
	engine := syncpkg.New(st, bus, resolver)

	tr := transport.NewFake()
	_ = tr.Connect(ctx, "fake://peer")

	respFrame, _ := wire.Encode(wire.TypeSyncResponse, wire.SyncResponse{
		SessionID: "s1",
		Messages: []wire.Chat{
			{MessageID: "m1", SessionID: "s1", Sender: "bob", Recipient: "alice", ContentType: 1, CreatedAt: 100, VectorClock: map[string]uint64{"bob-phone": 1}},
		},
		Cursor:   map[string]uint64{"bob-phone": 1},
		Complete: true,
	})
	tr.Inject(respFrame)

	stats, err := engine.Run(ctx, tr, "s1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.TotalMessagesSynced != 1 {
		t.Fatalf("expected 1 message synced, got %d", stats.TotalMessagesSynced)
	}

	got, err := st.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Sender != "bob" {
		t.Fatalf("unexpected synced message: %+v", got)
	}
}

func TestConflictResolverLatestPicksNewerCreatedAt(t *testing.T) {
	resolver := syncpkg.NewConflictResolver(syncpkg.Latest, "d1")
	a := &model.Message{ID: "m1", CreatedAt: 100, VectorClock: model.VectorClock{"d1": 1}}
	b := &model.Message{ID: "m1", CreatedAt: 200, VectorClock: model.VectorClock{"d2": 1}}

	winner, _ := resolver.Resolve(a, b)
	if winner != b {
		t.Fatal("expected the later message to win under Latest strategy")
	}
}
