package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"winecellar/internal/config"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())
	unsetEnv(t, "WINECELLAR_OCR_API_KEY")
	unsetEnv(t, "GOOGLE_VISION_API_KEY")
	unsetEnv(t, "WINECELLAR_BASE_URL")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "winecellar", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "winecellar")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.ImagesDir() != filepath.Join(wantData, "images") || cfg.ThumbsDir() != filepath.Join(wantData, "thumbs") {
		t.Fatalf("unexpected image dirs: %q %q", cfg.ImagesDir(), cfg.ThumbsDir())
	}
	if cfg.Content.BaseURL != "https://skok-prod.appspot.com" {
		t.Fatalf("unexpected base url %q", cfg.Content.BaseURL)
	}
	if cfg.OCR.APIKey != "" {
		t.Fatalf("expected empty OCR key, got %q", cfg.OCR.APIKey)
	}
	if cfg.OCR.JPEGQuality != 50 || cfg.Capture.ThumbnailSize != 320 {
		t.Fatalf("unexpected image defaults: quality=%d thumb=%d", cfg.OCR.JPEGQuality, cfg.Capture.ThumbnailSize)
	}
	policy := cfg.BackoffPolicy()
	if policy.InitialInterval != time.Second || policy.MaxElapsedTime != 15*time.Minute {
		t.Fatalf("unexpected backoff policy %+v", policy)
	}
	if cfg.ConnectivityBaseBackoff() != 2*time.Second || cfg.Connectivity.MaxAttempts != 5 {
		t.Fatalf("unexpected connectivity defaults %+v", cfg.Connectivity)
	}
}

func TestLoadReadsTOMLAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	unsetEnv(t, "WINECELLAR_OCR_API_KEY")
	unsetEnv(t, "GOOGLE_VISION_API_KEY")
	unsetEnv(t, "WINECELLAR_BASE_URL")

	cfgPath := filepath.Join(dir, "config.toml")
	contents := strings.Join([]string{
		"[paths]",
		`data_dir = "` + dataDir + `"`,
		"[content]",
		`base_url = "http://127.0.0.1:8080/"`,
		`time_zone = "UTC"`,
		"[sync]",
		"max_concurrent = 4",
		"[logging]",
		`format = "JSON"`,
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WINECELLAR_OCR_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, resolved, exists, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != cfgPath {
		t.Fatalf("expected existing config at %s, got %s exists=%v", cfgPath, resolved, exists)
	}
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Content.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Content.BaseURL)
	}
	if cfg.Sync.MaxConcurrent != 4 {
		t.Fatalf("unexpected max concurrent %d", cfg.Sync.MaxConcurrent)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if cfg.OCR.APIKey != "from-dotenv" {
		t.Fatalf("expected OCR key from .env, got %q", cfg.OCR.APIKey)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"base url scheme":   func(c *config.Config) { c.Content.BaseURL = "ftp://example.com" },
		"jpeg quality":      func(c *config.Config) { c.OCR.JPEGQuality = 101 },
		"backoff":           func(c *config.Config) { c.Backoff.Multiplier = 0.5 },
		"cron":              func(c *config.Config) { c.Daemon.ResyncSchedule = "every now and then" },
		"log format":        func(c *config.Config) { c.Logging.Format = "xml" },
		"time zone":         func(c *config.Config) { c.Content.TimeZone = "Mars/Olympus" },
		"concurrency limit": func(c *config.Config) { c.Sync.MaxConcurrent = 100 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if decoded.Content.BaseURL != config.Default().Content.BaseURL {
		t.Fatalf("sample base url %q differs from default", decoded.Content.BaseURL)
	}
	if decoded.Backoff.MaxElapsedMS != 900000 {
		t.Fatalf("sample backoff max elapsed %d", decoded.Backoff.MaxElapsedMS)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.ImagesDir(), cfg.ThumbsDir(), cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
