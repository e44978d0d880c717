package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"winecellar/internal/backoff"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Content contains configuration for the remote content service.
type Content struct {
	BaseURL              string `toml:"base_url"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	SocketTimeoutSeconds int    `toml:"socket_timeout_seconds"`
	UploadRateKBps       int    `toml:"upload_rate_kbps"`
	UserAgent            string `toml:"user_agent"`
	TimeZone             string `toml:"time_zone"`
}

// OCR contains configuration for the text-detection service.
type OCR struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	Endpoint       string `toml:"endpoint"`
	JPEGQuality    int    `toml:"jpeg_quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capture contains configuration for importing photos.
type Capture struct {
	ThumbnailSize int `toml:"thumbnail_size"`
	MinFreeMB     int `toml:"min_free_mb"`
}

// Sync contains configuration for pipeline scheduling.
type Sync struct {
	MaxConcurrent       int `toml:"max_concurrent"`
	ClaimTimeoutMinutes int `toml:"claim_timeout_minutes"`
}

// Backoff configures the 503 retry policy of the HTTP executor.
type Backoff struct {
	InitialIntervalMS   int     `toml:"initial_interval_ms"`
	MaxIntervalMS       int     `toml:"max_interval_ms"`
	Multiplier          float64 `toml:"multiplier"`
	RandomizationFactor float64 `toml:"randomization_factor"`
	MaxElapsedMS        int     `toml:"max_elapsed_ms"`
}

// Connectivity configures the wait loop that precedes network phases.
type Connectivity struct {
	MaxAttempts   int    `toml:"max_attempts"`
	BaseBackoffMS int    `toml:"base_backoff_ms"`
	ProbeAddress  string `toml:"probe_address"`
}

// Session contains configuration for the PIN gate.
type Session struct {
	RequirePIN bool `toml:"require_pin"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Synced         bool   `toml:"synced"`
	Failures       bool   `toml:"failures"`
}

// Daemon contains configuration for background resync.
type Daemon struct {
	ResyncSchedule string `toml:"resync_schedule"`
	MetricsBind    string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for winecellar.
//
// Configuration sections by subsystem:
//   - Paths: data (database, images, thumbnails) and log directories
//   - Content: remote content service endpoint and transport limits
//   - OCR: text-detection API credentials and image encoding
//   - Capture: thumbnail size and free-space floor
//   - Sync: pipeline concurrency
//   - Backoff: 503 retry policy
//   - Connectivity: network wait loop
//   - Session: PIN gate
//   - Notifications: ntfy push notification settings
//   - Daemon: resync schedule and metrics endpoint
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Content       Content       `toml:"content"`
	OCR           OCR           `toml:"ocr"`
	Capture       Capture       `toml:"capture"`
	Sync          Sync          `toml:"sync"`
	Backoff       Backoff       `toml:"backoff"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Session       Session       `toml:"session"`
	Notifications Notifications `toml:"notifications"`
	Daemon        Daemon        `toml:"daemon"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("winecellar.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, image, thumbnail, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.ImagesDir(), c.ThumbsDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ImagesDir is where full-resolution captures are stored.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.Paths.DataDir, imagesDirName)
}

// ThumbsDir is where thumbnails are stored.
func (c *Config) ThumbsDir() string {
	return filepath.Join(c.Paths.DataDir, thumbsDirName)
}

// DatabasePath is the SQLite note store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "notes.db")
}

// PINPath is where the bcrypt PIN hash is kept.
func (c *Config) PINPath() string {
	return filepath.Join(c.Paths.DataDir, "pin.hash")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "winecellard.lock")
}

// BackoffPolicy converts the [backoff] section to a policy.
func (c *Config) BackoffPolicy() backoff.Policy {
	return backoff.Policy{
		InitialInterval:     time.Duration(c.Backoff.InitialIntervalMS) * time.Millisecond,
		MaxInterval:         time.Duration(c.Backoff.MaxIntervalMS) * time.Millisecond,
		Multiplier:          c.Backoff.Multiplier,
		RandomizationFactor: c.Backoff.RandomizationFactor,
		MaxElapsedTime:      time.Duration(c.Backoff.MaxElapsedMS) * time.Millisecond,
	}
}

// ConnectivityBaseBackoff returns the first wait of the connectivity loop.
func (c *Config) ConnectivityBaseBackoff() time.Duration {
	return time.Duration(c.Connectivity.BaseBackoffMS) * time.Millisecond
}

// ClaimTimeout is how long a note may stay in the syncing state before
// another process may reclaim it.
func (c *Config) ClaimTimeout() time.Duration {
	return time.Duration(c.Sync.ClaimTimeoutMinutes) * time.Minute
}

// Location resolves the time zone used for metadata offsets.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Content.TimeZone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("content.time_zone: %w", err)
	}
	return loc, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
