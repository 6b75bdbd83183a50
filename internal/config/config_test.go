package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.GraceWindow != 60*time.Second {
		t.Fatalf("grace window = %v", cfg.GraceWindow)
	}
	if cfg.MaxQueueLength != 500 || cfg.RecordRetries != 3 {
		t.Fatalf("limits: %+v", cfg)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.yaml")
	raw := []byte("listen_addr: \":9999\"\ngrace_window: 15s\nlog_level: debug\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.GraceWindow != 15*time.Second || cfg.LogLevel != "debug" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LISTEN_ADDR", ":7777")
	t.Setenv("GRACE_WINDOW", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("env should win over file, got %q", cfg.ListenAddr)
	}
	if cfg.GraceWindow != 90*time.Second {
		t.Fatalf("grace window = %v", cfg.GraceWindow)
	}
}

func TestInvalidDurationRejected(t *testing.T) {
	t.Setenv("GRACE_WINDOW", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestMissingFileIsFine(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err != nil {
		t.Fatalf("missing optional file should not error: %v", err)
	}
}
