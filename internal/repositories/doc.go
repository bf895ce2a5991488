// Package repositories implements SQLite persistence for the run ledger.
//
// The ledger records one [models.Run] per stage execution so an operator can see how a
// multi-day enrichment progressed. Checkpoint files stay the source of truth for row state;
// the ledger only keeps counters and stop reasons.
//
// Rows are soft deleted via deleted_at and excluded from queries by default.
//
// Runs are numbered from the runs_sequence counter through [NextSequence], so history can say
// "run #42" whatever the UUID or clock says.
package repositories
