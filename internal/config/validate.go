package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

const maxSyncConcurrency = 16

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.BackoffPolicy().Validate(); err != nil {
		return fmt.Errorf("backoff: %w", err)
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateContent() error {
	parsed, err := url.Parse(c.Content.BaseURL)
	if err != nil {
		return fmt.Errorf("content.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("content.base_url must use http or https, got %q", c.Content.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("content.base_url must include a host, got %q", c.Content.BaseURL)
	}
	if c.Content.UploadRateKBps < 0 {
		return errors.New("content.upload_rate_kbps must be >= 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateOCR() error {
	if c.OCR.JPEGQuality < 1 || c.OCR.JPEGQuality > 100 {
		return fmt.Errorf("ocr.jpeg_quality must be between 1 and 100, got %d", c.OCR.JPEGQuality)
	}
	if _, err := url.Parse(c.OCR.Endpoint); err != nil {
		return fmt.Errorf("ocr.endpoint: %w", err)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxConcurrent > maxSyncConcurrency {
		return fmt.Errorf("sync.max_concurrent must be <= %d, got %d", maxSyncConcurrency, c.Sync.MaxConcurrent)
	}
	if c.Connectivity.MaxAttempts > 20 {
		return fmt.Errorf("connectivity.max_attempts must be <= 20, got %d", c.Connectivity.MaxAttempts)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.ResyncSchedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Daemon.ResyncSchedule); err != nil {
		return fmt.Errorf("daemon.resync_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
