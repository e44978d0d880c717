package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// State is a pipeline position for one note.
type State string

const (
	StateCaptured       State = "captured"
	StateOCRDone        State = "ocr_done"
	StateLocalPersisted State = "local_persisted"
	StateURLFetched     State = "url_fetched"
	StateImageUploaded  State = "image_uploaded"
	StateSynced         State = "synced"
	StateFailed         State = "failed"
)

// FailedStage names the step at which a run failed.
type FailedStage string

const (
	FailedNone           FailedStage = ""
	FailedPersist        FailedStage = "persist"
	FailedConnectivity   FailedStage = "connectivity"
	FailedURLFetch       FailedStage = "url_fetch"
	FailedImageUpload    FailedStage = "image_upload"
	FailedMetadataUpload FailedStage = "metadata_upload"
)

// ErrSyncInProgress is reported when another process holds a fresh sync
// claim on the note.
var ErrSyncInProgress = errors.New("sync already in progress")

// StageError ties a failure to the stage it happened in.
type StageError struct {
	Stage FailedStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one pipeline run.
type Result struct {
	NoteID int64
	// State is StateSynced or StateFailed for completed runs. A run skipped
	// because another process is syncing the note keeps the last state it
	// reached.
	State State
	// Reached is the last state the run entered successfully.
	Reached     State
	FailedStage FailedStage
	RemoteURI   string
	Err         error
	RequestID   string
	Duration    time.Duration
}

// Synced reports whether the run completed the full sync.
func (r Result) Synced() bool {
	return r.State == StateSynced
}

// Skipped reports whether the run backed off because of a concurrent sync.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrSyncInProgress)
}
