package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeContent()
	c.normalizeOCR()
	c.normalizeSync()
	c.normalizeConnectivity()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeContent() {
	if value, ok := os.LookupEnv("WINECELLAR_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Content.BaseURL = value
	}
	c.Content.BaseURL = strings.TrimRight(strings.TrimSpace(c.Content.BaseURL), "/")
	if c.Content.BaseURL == "" {
		c.Content.BaseURL = defaultContentBaseURL
	}
	if c.Content.TimeoutSeconds <= 0 {
		c.Content.TimeoutSeconds = defaultContentTimeoutSeconds
	}
	if c.Content.SocketTimeoutSeconds <= 0 {
		c.Content.SocketTimeoutSeconds = defaultContentSocketTimeout
	}
	c.Content.UserAgent = strings.TrimSpace(c.Content.UserAgent)
	if c.Content.UserAgent == "" {
		c.Content.UserAgent = defaultUserAgent
	}
	c.Content.TimeZone = strings.TrimSpace(c.Content.TimeZone)
}

func (c *Config) normalizeOCR() {
	c.OCR.APIKey = strings.TrimSpace(c.OCR.APIKey)
	if c.OCR.APIKey == "" {
		for _, name := range []string{"WINECELLAR_OCR_API_KEY", "GOOGLE_VISION_API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.OCR.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.OCR.Endpoint = strings.TrimSpace(c.OCR.Endpoint)
	if c.OCR.Endpoint == "" {
		c.OCR.Endpoint = defaultOCREndpoint
	}
	if c.OCR.JPEGQuality <= 0 {
		c.OCR.JPEGQuality = defaultOCRJPEGQuality
	}
	if c.OCR.TimeoutSeconds <= 0 {
		c.OCR.TimeoutSeconds = defaultOCRTimeoutSeconds
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.MaxConcurrent <= 0 {
		c.Sync.MaxConcurrent = defaultSyncMaxConcurrent
	}
	if c.Sync.ClaimTimeoutMinutes <= 0 {
		c.Sync.ClaimTimeoutMinutes = defaultSyncClaimTimeoutMinutes
	}
	if c.Capture.ThumbnailSize <= 0 {
		c.Capture.ThumbnailSize = defaultThumbnailSize
	}
	if c.Capture.MinFreeMB < 0 {
		c.Capture.MinFreeMB = 0
	}
}

func (c *Config) normalizeConnectivity() {
	if c.Connectivity.MaxAttempts <= 0 {
		c.Connectivity.MaxAttempts = defaultConnectivityMaxAttempts
	}
	if c.Connectivity.BaseBackoffMS <= 0 {
		c.Connectivity.BaseBackoffMS = defaultConnectivityBaseBackoffMS
	}
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("WINECELLAR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Daemon.ResyncSchedule = strings.TrimSpace(c.Daemon.ResyncSchedule)
	c.Daemon.MetricsBind = strings.TrimSpace(c.Daemon.MetricsBind)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
