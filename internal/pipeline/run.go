package pipeline

import (
	"context"
	"log/slog"
	"time"

	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/services"
)

// run carries the bookkeeping of a single pipeline invocation.
type run struct {
	p            *Pipeline
	ctx          context.Context
	logger       *slog.Logger
	result       Result
	started      time.Time
	stageStarted time.Time
}

func (p *Pipeline) begin(ctx context.Context) *run {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = p.newID()
		ctx = services.WithRequestID(ctx, requestID)
	}
	now := time.Now()
	r := &run{
		p:            p,
		ctx:          ctx,
		started:      now,
		stageStarted: now,
		result:       Result{RequestID: requestID},
	}
	r.logger = logging.WithContext(ctx, p.logger)
	return r
}

func (r *run) attach(noteID int64) {
	r.result.NoteID = noteID
	r.ctx = services.WithNoteID(r.ctx, noteID)
	r.logger = logging.WithContext(r.ctx, r.p.logger)
}

func (r *run) stage(name FailedStage) {
	r.ctx = services.WithStage(r.ctx, string(name))
	r.logger = logging.WithContext(r.ctx, r.p.logger)
}

func (r *run) reach(state State) {
	now := time.Now()
	r.p.metrics.ObserveStage(state, now.Sub(r.stageStarted))
	r.stageStarted = now
	r.result.Reached = state
	r.logger.Debug("pipeline state reached", logging.String("state", string(state)))
}

func (r *run) fail(stage FailedStage, err error) Result {
	r.result.State = StateFailed
	r.result.FailedStage = stage
	r.result.Err = &StageError{Stage: stage, Err: err}

	if r.result.NoteID > 0 {
		// Bookkeeping survives cancellation so the failure is visible to resync.
		bookkeeping := context.WithoutCancel(r.ctx)
		if markErr := r.p.store.SetSyncState(bookkeeping, r.result.NoteID, notes.SyncFailed, string(stage), err.Error()); markErr != nil {
			r.logger.Debug("record sync failure", logging.Error(markErr))
		}
	}

	logging.WarnWithContext(r.logger, "note sync failed", "sync_failed",
		logging.String("failed_stage", string(stage)),
		logging.String("reached", string(r.result.Reached)),
		logging.String("error_kind", services.Classify(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(stage)),
		logging.String(logging.FieldImpact, "note stays local until it is resynced"),
	)
	return r.finish()
}

func (r *run) skip() Result {
	r.result.State = r.result.Reached
	r.result.Err = ErrSyncInProgress
	r.logger.Info("note sync skipped; another sync holds the claim",
		logging.String(logging.FieldEventType, "sync_skipped"),
	)
	return r.finish()
}

func (r *run) succeed() Result {
	r.reach(StateSynced)
	r.result.State = StateSynced
	r.logger.Info("note synced",
		logging.String(logging.FieldEventType, "sync_complete"),
		logging.String("uri", r.result.RemoteURI),
		logging.Duration("duration", time.Since(r.started)),
	)
	return r.finish()
}

func (r *run) finish() Result {
	r.result.Duration = time.Since(r.started)
	r.p.metrics.ObserveResult(r.result)
	return r.result
}

func failureHint(stage FailedStage) string {
	switch stage {
	case FailedPersist:
		return "check free space and permissions of the data directory"
	case FailedConnectivity:
		return "check the network connection and run winecellar sync"
	case FailedURLFetch, FailedImageUpload, FailedMetadataUpload:
		return "content service rejected the request; run winecellar sync later"
	default:
		return "check logs for details"
	}
}
