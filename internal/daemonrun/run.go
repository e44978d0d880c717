package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"winecellar/internal/config"
	"winecellar/internal/daemon"
	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/notifications"
	"winecellar/internal/pipeline"
	"winecellar/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipInitialResync defers the first resync pass to the schedule.
	SkipInitialResync bool
}

// Run starts the winecellar daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("winecellard-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update winecellard.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "winecellard.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflightSnapshot(signalCtx, logger, cfg)

	store, err := notes.Open(cfg)
	if err != nil {
		logger.Error("open note store", logging.Error(err))
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := pipeline.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	proc, err := pipeline.NewFromConfig(cfg, store, logger, metrics)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	notifier := notifications.NewService(cfg)
	runner := pipeline.NewRunner(proc, cfg.Sync.MaxConcurrent,
		pipeline.WithRunnerLogger(logger),
		pipeline.WithRunnerMetrics(metrics),
		pipeline.WithHook(daemon.NotifyHook(store, notifier,
			time.Duration(cfg.Notifications.RequestTimeout)*time.Second, logger)),
	)
	defer runner.Wait()

	d, err := daemon.New(cfg, store, runner, logger,
		daemon.WithNotifier(notifier),
		daemon.WithGatherer(registry),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other winecellard instance or check resync_schedule"),
		)
		return err
	}

	if !opts.SkipInitialResync {
		go func() {
			if _, err := d.ResyncAll(signalCtx); err != nil && !errors.Is(err, daemon.ErrResyncRunning) && signalCtx.Err() == nil {
				logging.WarnWithContext(logger, "initial resync failed", "resync_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "unsynced notes wait for the next scheduled pass"),
				)
			}
		}()
	}

	<-signalCtx.Done()
	logger.Info("winecellar daemon shutting down")
	return nil
}

func logPreflightSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	var ocrClient preflight.HealthChecker
	if cfg.OCR.Enabled {
		ocrClient = pipeline.NewOCRClient(cfg, logger)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, result := range preflight.RunAll(checkCtx, cfg, ocrClient) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "syncs may fail until resolved"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "winecellard.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is
// recorded.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "winecellard.pid"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
