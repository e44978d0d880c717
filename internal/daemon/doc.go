// Package daemon runs the long-lived winecellard process.
//
// A Daemon holds an flock-based lock so only one instance syncs a data
// directory, replays unsynced notes on a cron schedule through a
// pipeline.Runner, and optionally serves Prometheus metrics. Per-note
// notifications are delivered by the hook returned from NotifyHook.
//
// Keep orchestration here. Sync steps live in the pipeline package.
package daemon
