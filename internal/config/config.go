package config

import (
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SchedulerConfig controls the job scheduler: concurrency, retry
// policy, and how often completed work is flushed to disk.
type SchedulerConfig struct {
	MaxConcurrentTasks int   `yaml:"maxConcurrentTasks"`
	MaxRetries         int   `yaml:"maxRetries"`
	BackoffSeconds     []int `yaml:"backoffSeconds"`
	PersistIntervalSec int   `yaml:"persistIntervalSec"`
}

// ToolsConfig points at the external media binaries. Paths are passed
// to exec verbatim, so bare names resolve through PATH.
type ToolsConfig struct {
	FFmpegPath  string `yaml:"ffmpegPath"`
	FFprobePath string `yaml:"ffprobePath"`
}

type WaveformConfig struct {
	Buckets    int `yaml:"buckets"`
	SampleRate int `yaml:"sampleRate"`
}

type ThumbnailConfig struct {
	Width     int    `yaml:"width"`
	OutputDir string `yaml:"outputDir"`
}

// PersistenceConfig controls where completed-job snapshots live. An
// empty path falls back to the per-user application data directory.
type PersistenceConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig controls TTL-like deletion of old terminal jobs so
// that the in-memory job table does not grow without bound over time.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	CompletedTTLHours      int  `yaml:"completedTTLHours"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Tools       ToolsConfig       `yaml:"tools"`
	Waveform    WaveformConfig    `yaml:"waveform"`
	Thumbnail   ThumbnailConfig   `yaml:"thumbnail"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Retention   RetentionConfig   `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}

// Default returns a configuration usable without any config file,
// which is the common case when running as a desktop companion.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8722},
		Tools:  ToolsConfig{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"},
		Retention: RetentionConfig{
			Enabled:                true,
			CleanupIntervalMinutes: 60,
			CompletedTTLHours:      72,
		},
	}
}

// PersistencePath resolves the completed-jobs snapshot location,
// preferring the configured path and falling back to the per-user
// config directory.
func (c *Config) PersistencePath() string {
	if c.Persistence.Path != "" {
		return c.Persistence.Path
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "mixdown", "completed_jobs.json")
}
