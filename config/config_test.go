package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPath != DefaultSocketPath {
		t.Fatalf("SocketPath = %q, want default", cfg.SocketPath)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ubridge.yaml")
	content := "socket_path: test.socket\nidle_timeout: \"10s\"\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPath != "test.socket" {
		t.Fatalf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.IdleTimeout.Duration != 10*time.Second {
		t.Fatalf("IdleTimeout = %v, want 10s", cfg.IdleTimeout.Duration)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.KVCapacityHint != 64 {
		t.Fatalf("KVCapacityHint should keep default, got %d", cfg.KVCapacityHint)
	}
}
