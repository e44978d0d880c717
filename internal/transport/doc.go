// Package transport issues the HTTP requests of the sync pipeline.
//
// Executor sends GET, JSON POST, and multipart POST requests and captures
// the full response body before returning, so callers never hold an open
// connection.
//
// # Retry Behaviour
//
// Only HTTP 503 is treated as transient. Each call to Do creates a fresh
// backoff.Controller; after a 503 the executor sleeps the controller's delay
// and resends an identical request. When the controller reports exhaustion
// the 503 surfaces as a *StatusError with Exhausted set and
// services.ErrRetriesExhausted in its chain.
//
// Every other non-2xx status is returned immediately as a *StatusError.
// Transport failures (refused connections, timeouts, truncated bodies) are
// returned immediately as well; they are never retried here. Callers that
// need to wait for the network run connectivity.Await first.
//
// # Request Bodies
//
// Request bodies are produced by a builder that runs once per attempt, so
// retried multipart uploads reopen the file and stream identical bytes.
// Uploads can be throttled with WithUploadRate.
package transport
