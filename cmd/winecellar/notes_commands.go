package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"winecellar/internal/notes"
	"winecellar/internal/search"
)

func newNotesCommand(ctx *commandContext) *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Browse and edit stored notes",
	}

	notesCmd.AddCommand(newNotesListCommand(ctx))
	notesCmd.AddCommand(newNotesShowCommand(ctx))
	notesCmd.AddCommand(newNotesEditCommand(ctx))
	notesCmd.AddCommand(newNotesDeleteCommand(ctx))
	notesCmd.AddCommand(newNotesSeedCommand(ctx))
	notesCmd.AddCommand(newNotesFindCommand(ctx))

	return notesCmd
}

type noteJSON struct {
	ID          int64  `json:"id"`
	Wine        string `json:"wine"`
	Rating      string `json:"rating"`
	TextExtract string `json:"text_extract"`
	Notes       string `json:"notes"`
	Share       string `json:"share"`
	Picture     string `json:"picture"`
	RemoteURI   string `json:"remote_uri,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	SyncState   string `json:"sync_state"`
	SyncStage   string `json:"sync_stage,omitempty"`
	SyncError   string `json:"sync_error,omitempty"`
	Attempts    int    `json:"sync_attempts"`
}

func noteView(n *notes.Note) noteJSON {
	return noteJSON{
		ID:          n.ID,
		Wine:        n.Wine,
		Rating:      n.Rating,
		TextExtract: n.TextExtract,
		Notes:       n.Notes,
		Share:       n.Share,
		Picture:     n.PictureFileName,
		RemoteURI:   n.RemoteURI,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   n.UpdatedAt.Format(time.RFC3339),
		SyncState:   string(n.SyncState),
		SyncStage:   n.SyncStage,
		SyncError:   n.SyncError,
		Attempts:    n.SyncAttempts,
	}
}

func newNotesListCommand(ctx *commandContext) *cobra.Command {
	var (
		states     []string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := notes.ListOptions{Limit: limit, Offset: offset}
			for _, raw := range states {
				state, err := parseSyncState(raw)
				if err != nil {
					return err
				}
				opts.States = append(opts.States, state)
			}
			return ctx.withStore(cmd, func(store *notes.Store) error {
				list, err := store.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]noteJSON, 0, len(list))
					for _, n := range list {
						views = append(views, noteView(n))
					}
					return writeJSON(cmd, views)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notes")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, n := range list {
					rows = append(rows, []string{
						fmt.Sprintf("%d", n.ID),
						n.Wine,
						n.Rating,
						string(n.SyncState),
						n.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{Header: "ID", Align: alignRight},
					{Header: "Wine", MaxWidth: 40},
					{Header: "Rating", Align: alignRight},
					{Header: "Sync"},
					{Header: "Updated"},
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by sync state (pending, syncing, synced, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of notes to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of notes to skip (with --limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newNotesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <note-id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNoteIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store *notes.Store) error {
				n, err := store.Get(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, noteView(n))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Note #%d\n", n.ID)
				fmt.Fprintf(out, "  Wine:      %s\n", n.Wine)
				fmt.Fprintf(out, "  Rating:    %s\n", n.Rating)
				fmt.Fprintf(out, "  Share:     %s\n", n.Share)
				fmt.Fprintf(out, "  Picture:   %s\n", n.PictureFileName)
				fmt.Fprintf(out, "  Created:   %s\n", n.CreatedAt.Local().Format(time.RFC1123))
				fmt.Fprintf(out, "  Updated:   %s\n", n.UpdatedAt.Local().Format(time.RFC1123))
				fmt.Fprintf(out, "  Sync:      %s\n", describeSync(n))
				if n.RemoteURI != "" {
					fmt.Fprintf(out, "  Image URI: %s\n", n.RemoteURI)
				}
				if text := strings.TrimSpace(n.Notes); text != "" {
					fmt.Fprintf(out, "\nNotes:\n%s\n", text)
				}
				if text := strings.TrimSpace(n.TextExtract); text != "" {
					fmt.Fprintf(out, "\nLabel text:\n%s\n", text)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func describeSync(n *notes.Note) string {
	switch n.SyncState {
	case notes.SyncFailed:
		return fmt.Sprintf("failed at %s after %d attempt(s): %s", n.SyncStage, n.SyncAttempts, n.SyncError)
	case notes.SyncSyncing:
		return fmt.Sprintf("in progress since %s", n.SyncStartedAt.Local().Format(time.Kitchen))
	default:
		return string(n.SyncState)
	}
}

func newNotesEditCommand(ctx *commandContext) *cobra.Command {
	var patch notes.Patch

	cmd := &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Change fields of a note; omitted fields are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNoteIDs(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rating") {
				if patch.Rating, err = notes.ValidateRating(patch.Rating); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("share") {
				if patch.Share, err = notes.ValidateShare(patch.Share); err != nil {
					return err
				}
			}
			if patch.Empty() {
				return errors.New("nothing to change; pass --wine, --rating, --notes, or --share")
			}
			if err := ctx.authenticate(cmd); err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store *notes.Store) error {
				n, err := store.Update(cmd.Context(), ids[0], patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Note #%d updated\n", n.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&patch.Wine, "wine", "w", "", "Wine name")
	cmd.Flags().StringVarP(&patch.Rating, "rating", "r", "", "Rating from 0 to 5")
	cmd.Flags().StringVarP(&patch.Notes, "notes", "n", "", "Tasting notes")
	cmd.Flags().StringVar(&patch.Share, "share", "", "Share the note (Y or N)")
	return cmd
}

func newNotesDeleteCommand(ctx *commandContext) *cobra.Command {
	var keepFiles bool

	cmd := &cobra.Command{
		Use:   "delete <note-id>",
		Short: "Delete a note and its local photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNoteIDs(args)
			if err != nil {
				return err
			}
			if err := ctx.authenticate(cmd); err != nil {
				return err
			}
			cfg := ctx.configValue()
			return ctx.withStore(cmd, func(store *notes.Store) error {
				n, err := store.Get(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if err := store.Delete(cmd.Context(), n.ID); err != nil {
					return err
				}
				if !keepFiles && n.PictureFileName != "" {
					for _, dir := range []string{cfg.ImagesDir(), cfg.ThumbsDir()} {
						path := filepath.Join(dir, filepath.Base(n.PictureFileName))
						if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
							fmt.Fprintf(cmd.ErrOrStderr(), "warn: remove %s: %v\n", path, err)
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Note #%d deleted\n", n.ID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep the photo and thumbnail on disk")
	return cmd
}

func newNotesSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample note into an empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store *notes.Store) error {
				inserted, err := store.Seed(cmd.Context())
				if err != nil {
					return err
				}
				if inserted {
					fmt.Fprintln(cmd.OutOrStdout(), "Sample note inserted")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Store already has notes; nothing inserted")
				}
				return nil
			})
		},
	}
}

func parseSyncState(raw string) (notes.SyncState, error) {
	switch state := notes.SyncState(strings.ToLower(strings.TrimSpace(raw))); state {
	case notes.SyncPending, notes.SyncSyncing, notes.SyncSynced, notes.SyncFailed:
		return state, nil
	default:
		return "", fmt.Errorf("unknown sync state %q", raw)
	}
}

func newNotesFindCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "find <query...>",
		Short: "Search notes by wine name, tasting notes, and label text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withStore(cmd, func(store *notes.Store) error {
				all, err := store.List(cmd.Context(), notes.ListOptions{})
				if err != nil {
					return err
				}
				matches := search.Rank(query, all, limit)
				if jsonOutput {
					views := make([]noteJSON, 0, len(matches))
					for _, m := range matches {
						views = append(views, noteView(m.Note))
					}
					return writeJSON(cmd, views)
				}
				if len(matches) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No notes match %q\n", query)
					return nil
				}
				rows := make([][]string, 0, len(matches))
				for _, m := range matches {
					rows = append(rows, []string{
						fmt.Sprintf("%d", m.Note.ID),
						m.Note.Wine,
						m.Note.Rating,
						fmt.Sprintf("%.2f", m.Score),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{Header: "ID", Align: alignRight},
					{Header: "Wine", MaxWidth: 40},
					{Header: "Rating", Align: alignRight},
					{Header: "Score", Align: alignRight},
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of matches (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
