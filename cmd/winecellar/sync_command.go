package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"winecellar/internal/notes"
	"winecellar/internal/pipeline"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		metadataOnly bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "sync [note-id...]",
		Short: "Upload unsynced notes (all pending notes when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNoteIDs(args)
			if err != nil {
				return err
			}
			if err := ctx.authenticate(cmd); err != nil {
				return err
			}

			return ctx.withStore(cmd, func(store *notes.Store) error {
				if len(ids) == 0 {
					pending, err := store.Pending(cmd.Context())
					if err != nil {
						return err
					}
					for _, n := range pending {
						ids = append(ids, n.ID)
					}
				}
				if len(ids) == 0 {
					if jsonOutput {
						return writeJSON(cmd, []resultJSON{})
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to sync")
					return nil
				}

				results := make([]pipeline.Result, 0, len(ids))
				err := ctx.withRunner(cmd, store, func(runner *pipeline.Runner) error {
					tasks := make([]*pipeline.Task, 0, len(ids))
					for _, id := range ids {
						if metadataOnly {
							tasks = append(tasks, runner.UploadMetadata(cmd.Context(), id))
						} else {
							tasks = append(tasks, runner.Resync(cmd.Context(), id))
						}
					}
					for _, task := range tasks {
						result, err := task.Wait(cmd.Context())
						if err != nil {
							return err
						}
						results = append(results, result)
					}
					return nil
				})
				if err != nil {
					return err
				}

				failed := 0
				for _, r := range results {
					if !r.Synced() && !r.Skipped() {
						failed++
					}
				}
				if jsonOutput {
					views := make([]resultJSON, 0, len(results))
					for _, r := range results {
						views = append(views, resultView(r))
					}
					if err := writeJSON(cmd, views); err != nil {
						return err
					}
				} else {
					for _, r := range results {
						printResult(cmd.OutOrStdout(), r)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d notes failed to sync", failed, len(results))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "Only re-send note metadata for notes whose image is already uploaded")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseNoteIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid note id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
