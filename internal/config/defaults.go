package config

const (
	defaultConfigPath                = "~/.config/winecellar/config.toml"
	defaultDataDir                   = "~/.local/share/winecellar"
	defaultLogDir                    = "~/.local/share/winecellar/logs"
	imagesDirName                    = "images"
	thumbsDirName                    = "thumbs"
	defaultContentBaseURL            = "https://skok-prod.appspot.com"
	defaultContentTimeoutSeconds     = 60
	defaultContentSocketTimeout      = 45
	defaultUserAgent                 = "winecellar/0.1"
	defaultOCREndpoint               = "https://vision.googleapis.com/v1/images:annotate"
	defaultOCRJPEGQuality            = 50
	defaultOCRTimeoutSeconds         = 30
	defaultThumbnailSize             = 320
	defaultMinFreeMB                 = 20
	defaultSyncMaxConcurrent         = 2
	defaultSyncClaimTimeoutMinutes   = 30
	defaultBackoffInitialIntervalMS  = 1000
	defaultBackoffMaxIntervalMS      = 10000
	defaultBackoffMultiplier         = 1.5
	defaultBackoffRandomization      = 0.5
	defaultBackoffMaxElapsedMS       = 900000
	defaultConnectivityMaxAttempts   = 5
	defaultConnectivityBaseBackoffMS = 2000
	defaultNotifyRequestTimeout      = 10
	defaultResyncSchedule            = "*/30 * * * *"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Content: Content{
			BaseURL:              defaultContentBaseURL,
			TimeoutSeconds:       defaultContentTimeoutSeconds,
			SocketTimeoutSeconds: defaultContentSocketTimeout,
			UserAgent:            defaultUserAgent,
			TimeZone:             "Local",
		},
		OCR: OCR{
			Enabled:        true,
			Endpoint:       defaultOCREndpoint,
			JPEGQuality:    defaultOCRJPEGQuality,
			TimeoutSeconds: defaultOCRTimeoutSeconds,
		},
		Capture: Capture{
			ThumbnailSize: defaultThumbnailSize,
			MinFreeMB:     defaultMinFreeMB,
		},
		Sync: Sync{
			MaxConcurrent:       defaultSyncMaxConcurrent,
			ClaimTimeoutMinutes: defaultSyncClaimTimeoutMinutes,
		},
		Backoff: Backoff{
			InitialIntervalMS:   defaultBackoffInitialIntervalMS,
			MaxIntervalMS:       defaultBackoffMaxIntervalMS,
			Multiplier:          defaultBackoffMultiplier,
			RandomizationFactor: defaultBackoffRandomization,
			MaxElapsedMS:        defaultBackoffMaxElapsedMS,
		},
		Connectivity: Connectivity{
			MaxAttempts:   defaultConnectivityMaxAttempts,
			BaseBackoffMS: defaultConnectivityBaseBackoffMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Synced:         true,
			Failures:       true,
		},
		Daemon: Daemon{
			ResyncSchedule: defaultResyncSchedule,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
