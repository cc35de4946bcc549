package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Client.SyncInterval != 5*time.Second || cfg.Client.PollInterval != 3*time.Second {
		t.Errorf("unexpected client cadence: %+v", cfg.Client)
	}
	if cfg.Client.SubmitTimeout != 2*time.Second {
		t.Errorf("expected 2s submit timeout, got %v", cfg.Client.SubmitTimeout)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.yaml")
	doc := `
log_level: debug
server:
  http_addr: ":9090"
client:
  sync_interval: 10s
  backoff_multiplier: 1
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level from file, got %q", cfg.LogLevel)
	}
	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("expected env to override file, got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Client.SyncInterval != 10*time.Second {
		t.Errorf("expected 10s sync interval, got %v", cfg.Client.SyncInterval)
	}
	if cfg.Client.BackoffMultiplier != 1 {
		t.Errorf("expected flat backoff, got %v", cfg.Client.BackoffMultiplier)
	}
	// Untouched keys keep their defaults
	if cfg.Server.GRPCAddr != ":50051" {
		t.Errorf("expected default grpc addr, got %q", cfg.Server.GRPCAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pos.yaml")
		os.WriteFile(path, []byte("client:\n  poll_interval: 0s\n"), 0o600)
		if _, err := Load(path); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestPath(t *testing.T) {
	t.Setenv("POS_CONFIG", "/etc/pos.yaml")
	if got := Path(""); got != "/etc/pos.yaml" {
		t.Errorf("expected env path, got %q", got)
	}
	if got := Path("local.yaml"); got != "local.yaml" {
		t.Errorf("expected flag path, got %q", got)
	}
}
