package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
server:
  addr: ":9000"
  shutdownTimeout: 5s
sweep:
  binary: hackrf_sweep
  lnaGain: 32
  maxConsecutiveErrors: 4
  probeTimeout: 2s
health:
  dataSilence: 30m
  maxRecoveryAttempts: 5
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if config.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q", config.Server.Addr)
	}
	if config.Server.ShutdownTimeout.Std() != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", config.Server.ShutdownTimeout.Std())
	}
	if config.Settings.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v", config.Settings.SlogLevel())
	}

	mc := config.ManagerConfig()
	if mc.MaxConsecutiveErrors != 4 {
		t.Errorf("MaxConsecutiveErrors = %d, want 4", mc.MaxConsecutiveErrors)
	}
	if mc.ProbeTimeout != 2*time.Second {
		t.Errorf("ProbeTimeout = %v, want 2s", mc.ProbeTimeout)
	}
	if mc.Supervisor.LNAGain == nil || *mc.Supervisor.LNAGain != 32 {
		t.Errorf("LNAGain = %v, want 32", mc.Supervisor.LNAGain)
	}
	if mc.Health.DataSilence != 30*time.Minute {
		t.Errorf("DataSilence = %v, want 30m", mc.Health.DataSilence)
	}
	if mc.Health.MaxRecoveryAttempts != 5 {
		t.Errorf("MaxRecoveryAttempts = %d, want 5", mc.Health.MaxRecoveryAttempts)
	}

	// fields the file is silent on keep their defaults
	if mc.PreflightSettle != time.Second {
		t.Errorf("PreflightSettle = %v, want default 1s", mc.PreflightSettle)
	}
	if mc.InfoBinary != "hackrf_info" {
		t.Errorf("InfoBinary = %q, want default", mc.InfoBinary)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "settings:\n  logLevel: info\n"))
	if err != nil {
		t.Fatal(err)
	}

	if config.Server.Addr != ":8092" {
		t.Errorf("default Addr = %q", config.Server.Addr)
	}
	if config.Server.ShutdownTimeout.Std() != 10*time.Second {
		t.Errorf("default ShutdownTimeout = %v", config.Server.ShutdownTimeout.Std())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := LoadConfig(writeConfig(t, "sweep: [not a map]")); err == nil {
		t.Error("expected error for malformed yaml")
	}

	if _, err := LoadConfig(writeConfig(t, "server:\n  shutdownTimeout: fast\n")); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (Settings{LogLevel: tt.in}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
