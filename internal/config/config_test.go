package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultNormalizesAndValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.Queue.ConnectAttempts != 5 {
		t.Fatalf("expected 5 connect attempts, got %d", cfg.Queue.ConnectAttempts)
	}
}

func TestLoadReadsFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixdown.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[queue]
conversion_channel = "uploads"
publish_attempts = 7

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Queue.ConversionChannel != "uploads" {
		t.Fatalf("expected conversion channel override, got %q", cfg.Queue.ConversionChannel)
	}
	if cfg.Queue.PublishAttempts != 7 {
		t.Fatalf("expected publish attempts override, got %d", cfg.Queue.PublishAttempts)
	}
	if cfg.Queue.NotificationChannel != "mp3" {
		t.Fatalf("expected default notification channel, got %q", cfg.Queue.NotificationChannel)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "same channels",
			mutate:  func(c *Config) { c.Queue.NotificationChannel = c.Queue.ConversionChannel },
			wantSub: "must differ",
		},
		{
			name:    "smtp without host",
			mutate:  func(c *Config) { c.Notifications.Mode = "smtp" },
			wantSub: "smtp_host",
		},
		{
			name:    "push without topic",
			mutate:  func(c *Config) { c.Notifications.Mode = "push" },
			wantSub: "push_topic",
		},
		{
			name:    "unknown notification mode",
			mutate:  func(c *Config) { c.Notifications.Mode = "pigeon" },
			wantSub: "notifications.mode",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantSub: "logging.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize failed: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error containing %q, got %v", tc.wantSub, err)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected error when overwriting existing config")
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Queue.ConversionChannel != "video" {
		t.Fatalf("unexpected conversion channel in sample: %q", cfg.Queue.ConversionChannel)
	}
}
