package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solconnect/messaging-core/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Outbound.MaxSize != 1000 {
		t.Fatalf("expected default MaxSize 1000, got %d", cfg.Outbound.MaxSize)
	}
	if cfg.Health.PingCadence != 15*time.Second {
		t.Fatalf("expected default ping cadence 15s, got %v", cfg.Health.PingCadence)
	}
	if cfg.Relay.Strategy != "round_robin" {
		t.Fatalf("expected default strategy round_robin, got %q", cfg.Relay.Strategy)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	body := "outbound:\n  max_size: 250\nrelay:\n  strategy: weighted\n  region: eu-west\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Outbound.MaxSize != 250 {
		t.Fatalf("expected overridden MaxSize 250, got %d", cfg.Outbound.MaxSize)
	}
	if cfg.Relay.Strategy != "weighted" || cfg.Relay.Region != "eu-west" {
		t.Fatalf("expected overridden relay config, got %+v", cfg.Relay)
	}
}
