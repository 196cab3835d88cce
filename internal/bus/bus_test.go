package bus_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/solconnect/messaging-core/internal/bus"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/reaction"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/store"
	syncpkg "github.com/solconnect/messaging-core/internal/sync"
	"github.com/solconnect/messaging-core/internal/transport"
)

type noopProber struct{}

func (noopProber) Probe(context.Context, *model.RelayEndpoint) error { return nil }

func newTestBus(t *testing.T) (*bus.Bus, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	events := eventbus.New(slog.Default())
	t.Cleanup(func() { events.Close() })

	reactions, err := reaction.New(st, events)
	if err != nil {
		t.Fatalf("reaction.New: %v", err)
	}
	resolver := syncpkg.NewConflictResolver(syncpkg.Latest, "alice-phone")
	syncEngine := syncpkg.New(st, events, resolver)
	directory := relay.New(relay.RoundRobin, "", noopProber{})

	b := bus.New(st, events, reactions, syncEngine, directory, nil, "alice-phone", bus.ReceiptConfig{}, slog.Default())
	return b, st
}

func TestSendEncryptsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	b, st := newTestBus(t)

	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	session := &model.Session{ID: "s1", PeerIdentity: "bob", SharedKey: key, LocalDeviceID: "alice-phone"}
	if err := st.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	msg, err := b.Send(ctx, "s1", "hello", model.PriorityNormal)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Status != model.StatusQueued {
		t.Fatalf("expected StatusQueued, got %v", msg.Status)
	}
	if len(msg.Ciphertext) == 0 {
		t.Fatal("expected non-empty ciphertext")
	}

	tr := transport.NewFake()
	_ = tr.Connect(ctx, "fake://relay")
	b.Init(tr, "conn-1")

	sent, err := b.ProcessQueue(ctx, "s1")
	if err != nil {
		t.Fatalf("ProcessQueue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 message flushed, got %d", sent)
	}
}

func TestToggleReactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBus(t)

	const bobID = "3kR9mTqXzNcWbVrLgJdYoAfE5uQn1C8sHy"
	added, err := b.ToggleReaction(ctx, "s1", "m1", bobID, "🔥")
	if err != nil || !added {
		t.Fatalf("expected reaction added, got added=%v err=%v", added, err)
	}

	added, err = b.ToggleReaction(ctx, "s1", "m1", bobID, "🔥")
	if err != nil || added {
		t.Fatalf("expected second toggle to remove the reaction, got added=%v err=%v", added, err)
	}
}
