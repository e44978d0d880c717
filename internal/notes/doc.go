// Package notes owns the tasting-note model and its SQLite-backed store.
//
// A Note is created right after a label photo is captured, receives its OCR
// text extract next, and gains a remote URI once the image upload succeeds.
// The store assigns ids (INTEGER PRIMARY KEY AUTOINCREMENT) so they are
// positive, unique and never reused.
//
// Content writes (Create, Update, SetTextExtract, SetRemoteURI) bump
// UpdatedAt, which never moves backwards. Sync bookkeeping (SetSyncState,
// ClaimSync) leaves UpdatedAt alone so the metadata posted on a retry matches
// the first attempt.
//
// ClaimSync guards against two processes (CLI and daemon) syncing the same
// note at once: it flips sync_state to "syncing" only when no fresh claim
// exists.
package notes
