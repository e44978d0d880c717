// Package pipeline moves a captured label photo through recognition, local
// persistence, and the three-step cloud sync.
//
// The happy path is a fixed sequence of states:
//
//	captured -> ocr_done -> local_persisted -> url_fetched -> image_uploaded -> synced
//
// Any failure ends the run in StateFailed with a FailedStage naming where it
// stopped. Local store errors always report FailedPersist. A failed note stays
// as it was last persisted; nothing resumes it automatically. Resync and
// UploadMetadata are the explicit re-triggers.
//
// Runner executes pipelines off the caller's goroutine. It bounds concurrency
// with a weighted semaphore, collapses concurrent resyncs of the same note,
// and hands every finished Result to the registered hooks. Within one note the
// network steps run strictly in order; notes run independently of each other.
package pipeline
