package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"winecellar/internal/config"
	"winecellar/internal/connectivity"
	"winecellar/internal/content"
	"winecellar/internal/ocr"
	"winecellar/internal/transport"
)

// NewFromConfig assembles a pipeline with the HTTP executor, OCR client,
// content client, and connectivity probe described by cfg.
func NewFromConfig(cfg *config.Config, store Store, logger *slog.Logger, metrics *Metrics) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	contentExec := newExecutor(cfg, cfg.Content.TimeoutSeconds, logger, metrics, true)
	contentClient, err := content.NewClient(cfg.Content.BaseURL, contentExec, loc, logger)
	if err != nil {
		return nil, err
	}

	checker, err := newChecker(cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithMetrics(metrics),
		WithImagesDir(cfg.ImagesDir()),
		WithJPEGQuality(cfg.OCR.JPEGQuality),
		WithClaimTimeout(cfg.ClaimTimeout()),
		WithConnectivity(checker,
			connectivity.WithMaxAttempts(cfg.Connectivity.MaxAttempts),
			connectivity.WithBaseBackoff(cfg.ConnectivityBaseBackoff()),
		),
	}
	if cfg.OCR.Enabled {
		ocrExec := newExecutor(cfg, cfg.OCR.TimeoutSeconds, logger, metrics, false)
		opts = append(opts, WithRecognizer(ocr.NewClient(ocr.Config{
			APIKey:      cfg.OCR.APIKey,
			Endpoint:    cfg.OCR.Endpoint,
			JPEGQuality: cfg.OCR.JPEGQuality,
		}, ocrExec, logger)))
	}
	return New(store, contentClient, opts...), nil
}

// NewOCRClient builds the recognition client described by cfg.
func NewOCRClient(cfg *config.Config, logger *slog.Logger) *ocr.Client {
	return ocr.NewClient(ocr.Config{
		APIKey:      cfg.OCR.APIKey,
		Endpoint:    cfg.OCR.Endpoint,
		JPEGQuality: cfg.OCR.JPEGQuality,
	}, newExecutor(cfg, cfg.OCR.TimeoutSeconds, logger, nil, false), logger)
}

func newExecutor(cfg *config.Config, timeoutSeconds int, logger *slog.Logger, metrics *Metrics, uploads bool) *transport.Executor {
	timeout := transport.DefaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	headerTimeout := transport.DefaultResponseHeaderTimeout
	if cfg.Content.SocketTimeoutSeconds > 0 {
		headerTimeout = time.Duration(cfg.Content.SocketTimeoutSeconds) * time.Second
	}
	opts := []transport.Option{
		transport.WithHTTPClient(transport.NewHTTPClient(timeout, headerTimeout)),
		transport.WithPolicy(cfg.BackoffPolicy()),
		transport.WithLogger(logger),
		transport.WithUserAgent(cfg.Content.UserAgent),
	}
	if uploads {
		opts = append(opts, transport.WithUploadRate(cfg.Content.UploadRateKBps))
	}
	if metrics != nil {
		opts = append(opts, transport.WithObserver(metrics.ObserveHTTP))
	}
	return transport.NewExecutor(opts...)
}

func newChecker(cfg *config.Config) (connectivity.Checker, error) {
	if probe := strings.TrimSpace(cfg.Connectivity.ProbeAddress); probe != "" {
		return &connectivity.DialChecker{Address: probe}, nil
	}
	checker, err := connectivity.NewDialChecker(cfg.Content.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectivity probe: %w", err)
	}
	return checker, nil
}
