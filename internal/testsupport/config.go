package testsupport

import (
	"path/filepath"
	"testing"

	"winecellar/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Content.BaseURL = "http://127.0.0.1:1"
	cfgVal.Content.TimeZone = "UTC"
	cfgVal.OCR.APIKey = "test"
	cfgVal.Daemon.MetricsBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBaseURL points the content service at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Content.BaseURL = url
	}
}

// WithOCR points recognition at a test server.
func WithOCR(endpoint, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OCR.Endpoint = endpoint
		b.cfg.OCR.APIKey = key
	}
}

// WithRequirePIN toggles the session PIN gate.
func WithRequirePIN(required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.RequirePIN = required
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
