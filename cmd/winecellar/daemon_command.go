package main

import (
	"github.com/spf13/cobra"

	"winecellar/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background resync daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in logs")
	cmd.Flags().BoolVar(&opts.SkipInitialResync, "no-initial-resync", false, "Wait for the schedule before the first resync")
	return cmd
}
