package testsupport

import (
	"path/filepath"
	"testing"

	"mixdown/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Notifications default to "none" and queue polling is tightened so consumer
// tests do not sit idle between claims.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Queue.PollIntervalMillis = 10
	cfg.Queue.PublishBackoffSeconds = 0
	cfg.Notifications.Mode = "none"
	cfg.Logging.Format = "json"

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRedeliveries overrides the redelivery bound on the test config.
func WithMaxRedeliveries(n int) ConfigOption {
	return func(c *config.Config) {
		c.Queue.MaxRedeliveries = n
	}
}

// WithAPIToken sets the daemon API token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(c *config.Config) {
		c.Paths.APIToken = token
	}
}
