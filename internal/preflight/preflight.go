package preflight

import (
	"context"

	"winecellar/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// HealthChecker is implemented by service clients that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config.
// ocr may be nil when recognition is disabled.
func RunAll(ctx context.Context, cfg *config.Config, ocr HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Images directory", cfg.ImagesDir()),
		CheckFreeSpace("Free space", cfg.Paths.DataDir, cfg.Capture.MinFreeMB),
	}

	if cfg.OCR.Enabled {
		results = append(results, CheckOCR(ctx, cfg.OCR.APIKey, ocr))
	}
	results = append(results, CheckContentService(ctx, cfg.Content.BaseURL, cfg.Connectivity.ProbeAddress))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
