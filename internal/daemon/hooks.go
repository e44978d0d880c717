package daemon

import (
	"context"
	"log/slog"
	"time"

	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/notifications"
	"winecellar/internal/pipeline"
)

// NoteGetter loads a note by id.
type NoteGetter interface {
	Get(ctx context.Context, id int64) (*notes.Note, error)
}

// NotifyHook returns a pipeline hook that reports synced and failed runs.
// Skipped runs are not reported.
func NotifyHook(store NoteGetter, notifier notifications.Service, timeout time.Duration, logger *slog.Logger) pipeline.Hook {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(result pipeline.Result) {
		if result.Skipped() || result.NoteID == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		wine := ""
		if store != nil {
			if note, err := store.Get(ctx, result.NoteID); err == nil {
				wine = note.Wine
			}
		}

		var err error
		if result.Synced() {
			err = notifier.NotifySynced(ctx, result.NoteID, wine, result.RemoteURI)
		} else {
			err = notifier.NotifySyncFailed(ctx, result.NoteID, wine, string(result.FailedStage), result.Err)
		}
		if err != nil {
			logger.Warn("sync notification failed",
				logging.Int64(logging.FieldNoteID, result.NoteID),
				logging.Error(err),
			)
		}
	}
}
