package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults(42, 1, 2, 3, false)
	if cfg.Node.ID != 42 {
		t.Errorf("Node.ID = %d, want 42", cfg.Node.ID)
	}
	if cfg.Node.IsGround {
		t.Error("Node.IsGround = true, want false")
	}
	if cfg.Heartbeat.Timeout <= cfg.Heartbeat.Interval {
		t.Error("default heartbeat timeout must exceed interval")
	}
	if err := Validate(&cfg); err != nil {
		t.Errorf("Validate(Defaults()) = %v, want nil", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "satnode.yaml")
	yamlBody := `
version: 1
node:
  id: 7
  x: 1.5
  y: 2.5
  z: 0
network:
  listen_host: 127.0.0.1
  base_port: 9000
  min_peer_id: 1
  max_peer_id: 10
discovery:
  range: 5
  broadcast_interval: 1s
  position_update_interval: 2s
heartbeat:
  interval: 1s
  timeout: 3s
clock:
  sync_interval: 1s
`
	if err := os.WriteFile(path, []byte(yamlBody), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Node.ID != 7 {
		t.Errorf("Node.ID = %d, want 7", cfg.Node.ID)
	}
	if cfg.Discovery.BroadcastInterval != time.Second {
		t.Errorf("Discovery.BroadcastInterval = %v, want 1s", cfg.Discovery.BroadcastInterval)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsPermissiveMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "satnode.yaml")
	if err := os.WriteFile(path, []byte("node:\n  id: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for world-readable config file")
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "satnode.yaml")
	if err := os.WriteFile(path, []byte("version: 99\nnode:\n  id: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for config version too new")
	}
}

func TestValidateRejectsBadNetwork(t *testing.T) {
	cfg := Defaults(1, 0, 0, 0, false)
	cfg.Network.BasePort = 0
	if err := Validate(&cfg); err == nil {
		t.Error("expected error for invalid base_port")
	}

	cfg = Defaults(1, 0, 0, 0, false)
	cfg.Network.MaxPeerID = 0
	cfg.Network.MinPeerID = 5
	if err := Validate(&cfg); err == nil {
		t.Error("expected error for max_peer_id < min_peer_id")
	}

	cfg = Defaults(1, 0, 0, 0, false)
	cfg.Heartbeat.Timeout = cfg.Heartbeat.Interval
	if err := Validate(&cfg); err == nil {
		t.Error("expected error when heartbeat.timeout == heartbeat.interval")
	}
}
