package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stewardhq/steward/internal/config"
)

func writeHome(t *testing.T, yamlBody string) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	ic := filepath.Join(home, ".steward")
	if err := os.MkdirAll(ic, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if yamlBody != "" {
		if err := os.WriteFile(filepath.Join(ic, "config.yaml"), []byte(yamlBody), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	t.Setenv("HOME", home)
	return ic
}

func TestLoad_Defaults(t *testing.T) {
	writeHome(t, "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.NeedsGenesis {
		t.Fatal("expected NeedsGenesis=true when config.yaml absent")
	}
	if cfg.Scheduler.MaxConcurrency != 3 {
		t.Fatalf("expected default max_concurrency=3, got %d", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Subagent.MaxDepth != 2 || cfg.Subagent.MaxChildrenPerSession != 5 || cfg.Subagent.MaxConcurrentTotal != 10 {
		t.Fatalf("unexpected subagent defaults: %+v", cfg.Subagent)
	}
	if cfg.Heartbeat.IntervalMinutes != 30 || cfg.Heartbeat.MinIntervalMinutes != 10 {
		t.Fatalf("unexpected heartbeat defaults: %+v", cfg.Heartbeat)
	}
	if cfg.Model.CompactionReserve != 20_000 {
		t.Fatalf("expected compaction reserve floor 20000, got %d", cfg.Model.CompactionReserve)
	}
}

func TestLoad_ParsesYAMLOverrides(t *testing.T) {
	writeHome(t, "scheduler:\n  max_concurrency: 7\nheartbeat:\n  interval_minutes: 45\n  min_interval_minutes: 15\n")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Scheduler.MaxConcurrency != 7 {
		t.Fatalf("expected max_concurrency=7, got %d", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Heartbeat.IntervalMinutes != 45 || cfg.Heartbeat.MinIntervalMinutes != 15 {
		t.Fatalf("unexpected heartbeat overrides: %+v", cfg.Heartbeat)
	}
}

func TestLoad_CompactionReserveFloor(t *testing.T) {
	writeHome(t, "model:\n  compaction_reserve: 500\n")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.CompactionReserve != 20_000 {
		t.Fatalf("expected compaction reserve clamped to 20000 floor, got %d", cfg.Model.CompactionReserve)
	}
}

func TestLoad_InvalidSandboxBackendRejected(t *testing.T) {
	writeHome(t, "sandbox:\n  backend: qemu\n")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for unsupported sandbox backend")
	}
}

func TestLoad_InvalidHeartbeatFloorRejected(t *testing.T) {
	writeHome(t, "heartbeat:\n  interval_minutes: 5\n  min_interval_minutes: 10\n")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error when min_interval exceeds interval")
	}
}

func TestLoad_EnvOverridesProviderKeys(t *testing.T) {
	writeHome(t, "")
	t.Setenv("GOOGLE_API_KEY", "test-key-123")
	t.Setenv("STEWARD_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log_level=debug, got %q", cfg.LogLevel)
	}
	if got := cfg.ProviderAPIKey("google"); got != "test-key-123" {
		t.Fatalf("expected google api key override, got %q", got)
	}
}

func TestSearchAPIKey_EnvOverridesYAML(t *testing.T) {
	writeHome(t, "search:\n  api_keys:\n    brave: yaml-key\n")
	t.Setenv("BRAVE_API_KEY", "env-key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.SearchAPIKey("brave"); got != "env-key" {
		t.Fatalf("expected env override to win, got %q", got)
	}
}

func TestSetModel_UpdatesExistingFile(t *testing.T) {
	home := writeHome(t, "log_level: info\n")
	if err := config.SetModel(home, "anthropic", "claude-sonnet-4-5"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Provider != "anthropic" || cfg.Model.Model != "claude-sonnet-4-5" {
		t.Fatalf("unexpected model after SetModel: %+v", cfg.Model)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log_level preserved, got %q", cfg.LogLevel)
	}
}
