package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 9000
scheduler:
  maxConcurrentTasks: 5
  maxRetries: 2
  backoffSeconds: [2, 10]
  persistIntervalSec: 60
tools:
  ffmpegPath: /opt/ffmpeg/bin/ffmpeg
waveform:
  buckets: 500
persistence:
  path: /var/lib/mixdown/completed_jobs.json
retention:
  enabled: true
  completedTTLHours: 24
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Scheduler.MaxConcurrentTasks != 5 || cfg.Scheduler.MaxRetries != 2 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if len(cfg.Scheduler.BackoffSeconds) != 2 || cfg.Scheduler.BackoffSeconds[1] != 10 {
		t.Fatalf("backoff = %v", cfg.Scheduler.BackoffSeconds)
	}
	if cfg.Tools.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg path = %q", cfg.Tools.FFmpegPath)
	}
	if cfg.Waveform.Buckets != 500 {
		t.Fatalf("waveform buckets = %d", cfg.Waveform.Buckets)
	}
	if !cfg.Retention.Enabled || cfg.Retention.CompletedTTLHours != 24 {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8722 {
		t.Fatalf("default server = %+v", cfg.Server)
	}
	if cfg.Tools.FFmpegPath != "ffmpeg" || cfg.Tools.FFprobePath != "ffprobe" {
		t.Fatalf("default tools = %+v", cfg.Tools)
	}
	if !cfg.Retention.Enabled {
		t.Fatal("retention is on by default")
	}
}

func TestPersistencePath(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Path = "/tmp/state.json"
	if got := cfg.PersistencePath(); got != "/tmp/state.json" {
		t.Fatalf("explicit path = %q", got)
	}

	cfg.Persistence.Path = ""
	got := cfg.PersistencePath()
	if filepath.Base(got) != "completed_jobs.json" {
		t.Fatalf("fallback path = %q, want .../mixdown/completed_jobs.json", got)
	}
	if filepath.Base(filepath.Dir(got)) != "mixdown" {
		t.Fatalf("fallback dir = %q, want a mixdown directory", got)
	}
}
