package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8888 {
		t.Fatalf("expected default port 8888, got %d", cfg.HTTP.Port)
	}
	if cfg.Pipeline.DefaultVoice != "af_heart" {
		t.Fatalf("expected default voice af_heart, got %q", cfg.Pipeline.DefaultVoice)
	}
	if cfg.Pipeline.DefaultSpeed != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", cfg.Pipeline.DefaultSpeed)
	}
	if cfg.Pipeline.SampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", cfg.Pipeline.SampleRate)
	}
	if cfg.Bus.Enabled {
		t.Fatal("expected bus disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttsd.yaml")
	data := []byte(`
http:
  port: 9000
pipeline:
  mode: mock
  lang_code: b
  default_voice: bf_emma
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port override 9000, got %d", cfg.HTTP.Port)
	}
	if cfg.Pipeline.Mode != "mock" {
		t.Fatalf("expected mode mock, got %q", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.LangCode != "b" {
		t.Fatalf("expected lang code override, got %q", cfg.Pipeline.LangCode)
	}
	if cfg.Pipeline.DefaultVoice != "bf_emma" {
		t.Fatalf("expected voice override, got %q", cfg.Pipeline.DefaultVoice)
	}
	// untouched sections keep their defaults
	if cfg.Journal.RetentionMode != "persistent" {
		t.Fatalf("expected default retention mode, got %q", cfg.Journal.RetentionMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TTSD_HTTP_PORT", "8181")
	t.Setenv("TTSD_PIPELINE_MODE", "mock")
	t.Setenv("TTSD_PIPELINE_DEFAULT_VOICE", "am_adam")
	t.Setenv("TTSD_PIPELINE_DEFAULT_SPEED", "1.25")
	t.Setenv("TTSD_JOURNAL_PATH", "./tmp.db")
	t.Setenv("TTSD_JOURNAL_RETENTION_MODE", "ephemeral")
	t.Setenv("TTSD_BUS_ENABLED", "true")
	t.Setenv("TTSD_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("TTSD_BUS_NODE_ID", "test-node")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8181 {
		t.Fatalf("expected port 8181, got %d", cfg.HTTP.Port)
	}
	if cfg.Pipeline.DefaultVoice != "am_adam" {
		t.Fatalf("expected voice override, got %q", cfg.Pipeline.DefaultVoice)
	}
	if cfg.Pipeline.DefaultSpeed != 1.25 {
		t.Fatalf("expected speed 1.25, got %v", cfg.Pipeline.DefaultSpeed)
	}
	if cfg.Journal.Path != "./tmp.db" {
		t.Fatalf("expected journal path override, got %q", cfg.Journal.Path)
	}
	if cfg.Journal.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention mode override, got %q", cfg.Journal.RetentionMode)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.NodeID != "test-node" {
		t.Fatalf("expected node id override, got %q", cfg.Bus.NodeID)
	}
}

func TestValidateRejectsBadPipeline(t *testing.T) {
	t.Setenv("TTSD_PIPELINE_MODE", "remote")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown pipeline mode")
	}

	t.Setenv("TTSD_PIPELINE_MODE", "exec")
	t.Setenv("TTSD_PIPELINE_COMMAND", " ")
	t.Setenv("TTSD_PIPELINE_SAMPLE_RATE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{" debug ", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		tel := TelemetryConfig{LogLevel: tc.in}
		if got := tel.SlogLevel(); got != tc.want {
			t.Fatalf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
