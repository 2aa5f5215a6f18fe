package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Accent.TempoFast != 120 || cfg.Accent.PitchHigh != 0.07 {
		t.Fatalf("unexpected accent defaults: %+v", cfg.Accent)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accent.yaml")
	data := []byte(`runtime_name: screening
accent:
  tempo_fast: 130
  pitch_high: 0.09
stt:
  mode: exec
  command: "whisper-json --threads 2"
event_store:
  retention_mode: ephemeral
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "screening" || cfg.Accent.TempoFast != 130 || cfg.Accent.PitchHigh != 0.09 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Accent.TempoModerate != 100 {
		t.Fatalf("expected untouched defaults to survive, got %v", cfg.Accent.TempoModerate)
	}
	if cfg.STT.Command != "whisper-json --threads 2" {
		t.Fatalf("unexpected stt command %q", cfg.STT.Command)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACCENT_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("ACCENT_BUS_USERNAME", "alice")
	t.Setenv("ACCENT_BUS_PASSWORD", "secret")
	t.Setenv("ACCENT_BUS_TLS_INSECURE", "true")
	t.Setenv("ACCENT_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("ACCENT_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("ACCENT_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("ACCENT_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("ACCENT_EVENT_STORE_MAX_RECORDS", "123")
	t.Setenv("ACCENT_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("ACCENT_TEMPO_FAST", "125.5")
	t.Setenv("ACCENT_PITCH_MODERATE", "0.04")
	t.Setenv("ACCENT_STT_MOCK_TRANSCRIPT", "cheers mate")
	t.Setenv("ACCENT_ANALYZER_MAX_CONCURRENCY", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.EventStore.RetentionDays != 7 || cfg.EventStore.MaxRecords != 123 || !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store retention overrides, got %+v", cfg.EventStore)
	}
	if cfg.Accent.TempoFast != 125.5 || cfg.Accent.PitchModerate != 0.04 {
		t.Fatalf("expected accent threshold overrides, got %+v", cfg.Accent)
	}
	if cfg.STT.MockTranscript != "cheers mate" {
		t.Fatalf("expected mock transcript override")
	}
	if cfg.Analyzer.MaxConcurrency != 8 {
		t.Fatalf("expected analyzer concurrency override")
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("ACCENT_TEMPO_MODERATE", "130")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when tempo_moderate exceeds tempo_fast")
	}
}

func TestValidateExecSTTRequiresCommand(t *testing.T) {
	t.Setenv("ACCENT_STT_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}

func TestValidateAnalyzerRequiresBus(t *testing.T) {
	t.Setenv("ACCENT_BUS_ENABLED", "false")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for analyzer without bus")
	}
	t.Setenv("ACCENT_ANALYZER_ENABLED", "false")
	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHeartbeatTimeout(t *testing.T) {
	t.Setenv("ACCENT_ANALYZER_HEARTBEAT_TIMEOUT_MS", "1000")
	t.Setenv("ACCENT_ANALYZER_HEARTBEAT_INTERVAL_MS", "2000")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when heartbeat timeout does not exceed interval")
	}
}
