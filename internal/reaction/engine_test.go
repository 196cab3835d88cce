package reaction_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/reaction"
	"github.com/solconnect/messaging-core/internal/store"
)

// aliceID/bobID are well-formed base58 reactor identities (32-44 chars,
// no 0/O/I/l) standing in for real device public keys in these tests.
const (
	aliceID = "8fTqNcWk2mXyHs9PbVrLgJdYzAoE5uQn1C"
	bobID   = "3kR9mTqXzNcWbVrLgJdYoAfE5uQn1C8sHy"
)

func TestToggleAddsThenRemoves(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, err := reaction.New(st, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	added, err := engine.Toggle(ctx, "s1", "m1", aliceID, "👍")
	if err != nil || !added {
		t.Fatalf("expected first toggle to add, got added=%v err=%v", added, err)
	}

	added, err = engine.Toggle(ctx, "s1", "m1", aliceID, "👍")
	if err != nil || added {
		t.Fatalf("expected second toggle to remove, got added=%v err=%v", added, err)
	}

	summaries, err := engine.Summaries(ctx, "m1", aliceID)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no summaries after removal, got %d", len(summaries))
	}
}

func TestSummariesAggregatesByEmoji(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, _ := reaction.New(st, bus)
	_, _ = engine.Toggle(ctx, "s1", "m1", aliceID, "👍")
	_, _ = engine.Toggle(ctx, "s1", "m1", bobID, "👍")
	_, _ = engine.Toggle(ctx, "s1", "m1", bobID, "🎉")

	summaries, err := engine.Summaries(ctx, "m1", aliceID)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 distinct emoji summaries, got %d", len(summaries))
	}
	for _, s := range summaries {
		if s.Emoji == "👍" {
			if s.Count != 2 {
				t.Fatalf("expected count 2 for thumbs up, got %d", s.Count)
			}
			if !s.ViewerReacted {
				t.Fatal("expected alice's viewer flag to be set for thumbs up")
			}
		}
	}
}

func TestToggleRejectsInvalidEmoji(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, _ := reaction.New(st, bus)
	if _, err := engine.Toggle(ctx, "s1", "m1", aliceID, ""); err == nil {
		t.Fatal("expected empty emoji to be rejected")
	}
	if _, err := engine.Toggle(ctx, "s1", "m1", aliceID, "hello"); err == nil {
		t.Fatal("expected a non-emoji word to be rejected")
	}
	if _, err := engine.Toggle(ctx, "s1", "m1", aliceID, ":)"); err != nil {
		t.Fatalf("expected a listed text emoticon to be accepted, got %v", err)
	}
}

func TestToggleRejectsInvalidReactor(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, _ := reaction.New(st, bus)
	if _, err := engine.Toggle(ctx, "s1", "m1", "alice", "👍"); err == nil {
		t.Fatal("expected a too-short, non-base58-shaped reactor id to be rejected")
	}
	if _, err := engine.Toggle(ctx, "s1", "m1", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0O", "👍"); err == nil {
		t.Fatal("expected a reactor id containing non-base58 characters to be rejected")
	}
}

func TestRecentForReturnsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, _ := reaction.New(st, bus)
	if _, err := engine.Toggle(ctx, "s1", "m1", aliceID, "👍"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if _, err := engine.Toggle(ctx, "s1", "m2", aliceID, "🎉"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	recent := engine.RecentFor(aliceID, 8)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent emoji for alice, got %d", len(recent))
	}
	if recent[0].Emoji != "🎉" {
		t.Fatalf("expected most recently used emoji first, got %s", recent[0].Emoji)
	}
}

func TestRecentForRespectsLimit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	bus := eventbus.New(slog.Default())
	defer bus.Close()

	engine, _ := reaction.New(st, bus)
	emoji := []string{"👍", "🎉", "❤️", "😂"}
	for i, e := range emoji {
		msgID := string(rune('a' + i))
		if _, err := engine.Toggle(ctx, "s1", msgID, aliceID, e); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
	}

	recent := engine.RecentFor(aliceID, 2)
	if len(recent) != 2 {
		t.Fatalf("expected RecentFor to cap at limit=2, got %d", len(recent))
	}
}
