// Package tasks runs the row-processing stages of the pipeline with real-time progress reporting.
//
// # Stages
//
//  1. [LookupRunner] : one link provider over a provider checkpoint
//     - Works rows that were never looked up (or not_found/error rows with ForceRetry)
//     - Retries transient failures with backoff, then records found, not_found or error
//     - Waits a random delay between provider calls, even after a failure
//     - Saves the row set every CheckpointEvery rows and on return
//
//  2. [Reconcile] / [Merge] : combine both provider checkpoints into the master rows
//     - Provider A's link wins, provider B fills the gaps
//     - Pure and deterministic, so re-running on the same inputs writes the same bytes
//
//  3. [DownloadOrchestrator] : fetch and tag audio for the master rows
//     - Direct link, then provider B's alternate link, then a search checked against the
//     expected duration with [WithinTolerance]
//     - Skips rows whose audio file already exists
//     - Long pause every few downloads and a cool-down after repeated failures
//
// Every stage re-derives its work from row status, never from memory, and stops cleanly on
// cancellation, MaxRows or its runtime ceiling. The returned [Report] tells the caller whether rows
// remain.
//
// # Progress Reporting
//
// All stages use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Testing
//
// Time is injected through [Clock], so tests drive delays, backoff and the runtime ceiling without
// sleeping.
package tasks
