package relay_test

import (
	"context"
	"testing"

	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/relay"
)

type noopProber struct{}

func (noopProber) Probe(context.Context, *model.RelayEndpoint) error { return nil }

func TestSelectExcludesIneligible(t *testing.T) {
	d := relay.New(relay.RoundRobin, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "a", IsHealthy: false})
	d.Upsert(&model.RelayEndpoint{ID: "b", IsHealthy: true, MaxConnections: 10})

	selected, err := d.Select(nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ID != "b" {
		t.Fatalf("expected endpoint b, got %s", selected.ID)
	}
}

func TestSelectNoHealthyRelays(t *testing.T) {
	d := relay.New(relay.RoundRobin, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "a", IsHealthy: false})

	_, err := d.Select(nil)
	if err == nil {
		t.Fatal("expected ErrNoHealthyRelays")
	}
}

func TestSelectLeastConnections(t *testing.T) {
	d := relay.New(relay.LeastConnections, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "a", IsHealthy: true, MaxConnections: 10, CurrentConnections: 9})
	d.Upsert(&model.RelayEndpoint{ID: "b", IsHealthy: true, MaxConnections: 10, CurrentConnections: 1})

	selected, err := d.Select(nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ID != "b" {
		t.Fatalf("expected least-loaded endpoint b, got %s", selected.ID)
	}
}

func TestSelectExcludesGivenSet(t *testing.T) {
	d := relay.New(relay.RoundRobin, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "a", IsHealthy: true, MaxConnections: 10})
	d.Upsert(&model.RelayEndpoint{ID: "b", IsHealthy: true, MaxConnections: 10})

	selected, err := d.Select(map[string]struct{}{"a": {}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ID != "b" {
		t.Fatalf("expected b after excluding a, got %s", selected.ID)
	}
}

func TestSelectWeightedFavorsHigherQualityOverManyDraws(t *testing.T) {
	d := relay.New(relay.Weighted, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "low", IsHealthy: true, MaxConnections: 10, QualityScore: 1})
	d.Upsert(&model.RelayEndpoint{ID: "high", IsHealthy: true, MaxConnections: 10, QualityScore: 99})

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		selected, err := d.Select(nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		counts[selected.ID]++
	}
	if counts["high"] <= counts["low"] {
		t.Fatalf("expected the higher-QualityScore endpoint to be picked far more often, got %v", counts)
	}
	if counts["low"] == 0 {
		t.Fatal("expected the lower-QualityScore endpoint to still be picked sometimes")
	}
}

func TestSelectWeightedTieBreaksByLatency(t *testing.T) {
	d := relay.New(relay.Weighted, "", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "slow", IsHealthy: true, MaxConnections: 10, QualityScore: 50, LatencyMillis: 200})
	d.Upsert(&model.RelayEndpoint{ID: "fast", IsHealthy: true, MaxConnections: 10, QualityScore: 50, LatencyMillis: 20})

	for i := 0; i < 20; i++ {
		selected, err := d.Select(nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if selected.ID != "fast" {
			t.Fatalf("expected equal-quality tie to always resolve to the lower-latency endpoint, got %s", selected.ID)
		}
	}
}

func TestSelectGeographicPrefersLowestLatencyInRegion(t *testing.T) {
	d := relay.New(relay.Geographic, "eu", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "eu-slow", Region: "eu", IsHealthy: true, MaxConnections: 10, LatencyMillis: 150})
	d.Upsert(&model.RelayEndpoint{ID: "eu-fast", Region: "eu", IsHealthy: true, MaxConnections: 10, LatencyMillis: 30})
	d.Upsert(&model.RelayEndpoint{ID: "us-fastest", Region: "us", IsHealthy: true, MaxConnections: 10, LatencyMillis: 5})

	selected, err := d.Select(nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ID != "eu-fast" {
		t.Fatalf("expected the lowest-latency in-region endpoint, got %s", selected.ID)
	}
}

func TestSelectGeographicFallsBackOutsideRegion(t *testing.T) {
	d := relay.New(relay.Geographic, "eu", noopProber{})
	d.Upsert(&model.RelayEndpoint{ID: "us-slow", Region: "us", IsHealthy: true, MaxConnections: 10, LatencyMillis: 150})
	d.Upsert(&model.RelayEndpoint{ID: "us-fast", Region: "us", IsHealthy: true, MaxConnections: 10, LatencyMillis: 30})

	selected, err := d.Select(nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ID != "us-fast" {
		t.Fatalf("expected the lowest-latency out-of-region endpoint when none match, got %s", selected.ID)
	}
}
