package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"winecellar/internal/daemon"
	"winecellar/internal/daemonrun"
	"winecellar/internal/notes"
	"winecellar/internal/pipeline"
	"winecellar/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipNetwork bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Daemon", colorize)
			running, pid := daemonRunning(cfg.LockPath(), daemonrun.ReadPID(cfg))
			if running {
				msg := "Running"
				if pid > 0 {
					msg = fmt.Sprintf("Running (pid %d)", pid)
				}
				lines = append(lines, renderStatusLine("winecellard", statusOK, msg, colorize))
			} else {
				lines = append(lines, renderStatusLine("winecellard", statusWarn, "Not running", colorize))
			}
			if schedule := strings.TrimSpace(cfg.Daemon.ResyncSchedule); schedule != "" {
				if next, err := daemon.NextRun(schedule, time.Now()); err == nil {
					lines = append(lines, renderStatusLine("Next resync", statusInfo,
						fmt.Sprintf("%s (%s)", next.Local().Format("15:04"), schedule), colorize))
				}
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Notes", colorize)...)
			err := ctx.withStore(cmd, func(store *notes.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				lines = append(lines, syncLines(stats, colorize)...)
				return nil
			})
			if err != nil {
				lines = append(lines, renderStatusLine("Store", statusError, err.Error(), colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			var results []preflight.Result
			if skipNetwork {
				results = []preflight.Result{
					preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
					preflight.CheckDirectoryAccess("Images directory", cfg.ImagesDir()),
					preflight.CheckFreeSpace("Free space", cfg.Paths.DataDir, cfg.Capture.MinFreeMB),
				}
			} else {
				var ocrClient preflight.HealthChecker
				if cfg.OCR.Enabled {
					ocrClient = pipeline.NewOCRClient(cfg, ctx.logger())
				}
				checkCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				results = preflight.RunAll(checkCtx, cfg, ocrClient)
				cancel()
			}
			lines = append(lines, preflightLines(results, colorize)...)

			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipNetwork, "offline", false, "Skip checks that contact remote services")
	return cmd
}

// daemonRunning reports whether another process holds the daemon lock.
func daemonRunning(lockPath string, pid int) (bool, int) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, 0
	}
	if ok {
		_ = lock.Unlock()
		return false, 0
	}
	return true, pid
}
