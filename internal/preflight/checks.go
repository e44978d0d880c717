package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"winecellar/internal/connectivity"
	"winecellar/internal/services"
)

const bytesPerMB = 1024 * 1024

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// EnsureFreeSpace returns services.ErrInsufficientStorage when fewer than
// minFreeMB megabytes are available at path. A non-positive floor disables
// the check.
func EnsureFreeSpace(path string, minFreeMB int) error {
	if minFreeMB <= 0 {
		return nil
	}
	free, err := FreeBytes(path)
	if err != nil {
		return err
	}
	if free < uint64(minFreeMB)*bytesPerMB {
		return services.Wrap(services.ErrInsufficientStorage, "capture", "check free space",
			fmt.Sprintf("%d MB free at %s, need %d MB", free/bytesPerMB, path, minFreeMB), nil)
	}
	return nil
}

// CheckFreeSpace reports whether path has at least minFreeMB available.
func CheckFreeSpace(name, path string, minFreeMB int) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d MB available", free/bytesPerMB)
	if minFreeMB > 0 && free < uint64(minFreeMB)*bytesPerMB {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d MB)", detail, minFreeMB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckOCR verifies the recognition key and endpoint.
func CheckOCR(ctx context.Context, apiKey string, client HealthChecker) Result {
	const name = "Cloud Vision OCR"

	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	if client == nil {
		return Result{Name: name, Passed: true, Detail: "API key configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckContentService verifies the content service host accepts connections.
// probeAddress overrides the host:port derived from baseURL.
func CheckContentService(ctx context.Context, baseURL, probeAddress string) Result {
	const name = "Content service"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	checker := &connectivity.DialChecker{Address: strings.TrimSpace(probeAddress), Timeout: 5 * time.Second}
	if checker.Address == "" {
		derived, err := connectivity.NewDialChecker(base)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("invalid base url (%v)", err)}
		}
		checker.Address = derived.Address
	}
	if !checker.Connected(ctx) {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable", checker.Address)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", checker.Address)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (endpoint unreachable)"
	}
	return err.Error()
}
