package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"winecellar/internal/capture"
	"winecellar/internal/notes"
	"winecellar/internal/pipeline"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var (
		wine       string
		rating     string
		tasting    string
		share      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "capture <photo>",
		Short: "Import a label photo as a new note and sync it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.authenticate(cmd); err != nil {
				return err
			}
			normalizedRating, err := notes.ValidateRating(rating)
			if err != nil {
				return err
			}
			normalizedShare, err := notes.ValidateShare(share)
			if err != nil {
				return err
			}

			cfg := ctx.configValue()
			imported, err := capture.Import(cmd.Context(), args[0], capture.OptionsFromConfig(cfg, ctx.logger()))
			if err != nil {
				return fmt.Errorf("import photo: %w", err)
			}

			return ctx.withStore(cmd, func(store *notes.Store) error {
				var result pipeline.Result
				err := ctx.withRunner(cmd, store, func(runner *pipeline.Runner) error {
					task := runner.Submit(cmd.Context(), pipeline.Capture{
						Wine:          wine,
						Rating:        normalizedRating,
						Notes:         tasting,
						Share:         normalizedShare,
						ImagePath:     imported.ImagePath,
						ThumbnailPath: imported.ThumbnailPath,
					})
					var waitErr error
					result, waitErr = task.Wait(cmd.Context())
					return waitErr
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd, resultView(result)); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), result)
				}
				if result.FailedStage == pipeline.FailedPersist {
					return fmt.Errorf("note not saved: %w", result.Err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&wine, "wine", "w", "", "Wine name")
	cmd.Flags().StringVarP(&rating, "rating", "r", "", "Rating from 0 to 5")
	cmd.Flags().StringVarP(&tasting, "notes", "n", "", "Tasting notes")
	cmd.Flags().StringVar(&share, "share", "Y", "Share the note (Y or N)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type resultJSON struct {
	NoteID      int64  `json:"note_id"`
	State       string `json:"state"`
	Reached     string `json:"reached,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
	RemoteURI   string `json:"remote_uri,omitempty"`
	Error       string `json:"error,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

func resultView(r pipeline.Result) resultJSON {
	view := resultJSON{
		NoteID:      r.NoteID,
		State:       string(r.State),
		Reached:     string(r.Reached),
		FailedStage: string(r.FailedStage),
		RemoteURI:   r.RemoteURI,
		RequestID:   r.RequestID,
		DurationMS:  r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		view.Error = r.Err.Error()
	}
	return view
}

func printResult(out io.Writer, r pipeline.Result) {
	switch {
	case r.Synced():
		fmt.Fprintf(out, "Note #%d synced (%s)\n", r.NoteID, r.RemoteURI)
	case r.Skipped():
		fmt.Fprintf(out, "Note #%d skipped: another sync is in progress\n", r.NoteID)
	case r.NoteID == 0:
		fmt.Fprintf(out, "Sync failed: %v\n", r.Err)
	default:
		stage := string(r.FailedStage)
		if stage == "" {
			stage = "sync"
		}
		fmt.Fprintf(out, "Note #%d saved locally; %s failed: %v\n", r.NoteID, stage, r.Err)
	}
}
