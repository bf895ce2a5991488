// Package models defines the row types and status machine of the enrichment pipeline.
//
// The package contains three groups of types:
//
// 1. Rows: values read from and written to checkpoint files
//   - [Track] : one row of the library export, keyed by its URI
//   - [LookupRow] : a track with one provider's [LookupResult]
//   - [MasterRecord] : the reconciled link with its [Provenance]
//   - [DownloadRecord] : a master row with its download state
//
// 2. Status: the per-stage state machines
//   - [LookupStatus] : not_attempted -> found | not_found | error
//   - [DownloadStatus] : pending -> in_progress -> success | failed_no_match | failed_error | skipped_existing
//
// 3. Persistent entities: the run ledger
//   - [Run] : one execution of a stage with its counters and stop reason
//
// [Run] implements the Model interface; the Repository[T] interface defines CRUD operations for the ledger.
package models
