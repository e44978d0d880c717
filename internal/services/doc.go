// Package services defines shared utilities consumed by the sync pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp note IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the closed taxonomy used by the pipeline (transient, network,
//     connectivity, persistence, storage).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
