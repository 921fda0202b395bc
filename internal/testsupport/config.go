package testsupport

import (
	"path/filepath"
	"testing"

	"vidpress/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Backend.BaseURL = "https://backend.test"
	cfg.Backend.APIToken = "test-token"
	cfg.Backend.Brand = "main"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithBackendURL points the test config at a live httptest server.
func WithBackendURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Backend.BaseURL = url
	}
}

// WithBrand overrides the brand scope on the test config.
func WithBrand(brand string) ConfigOption {
	return func(c *config.Config) {
		c.Backend.Brand = brand
	}
}
