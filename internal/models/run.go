package models

import (
	"fmt"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageSongstats Stage = "lookup_songstats"
	StageDiscogs   Stage = "lookup_discogs"
	StageMerge     Stage = "merge"
	StageDownload  Stage = "download"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageSongstats, StageDiscogs, StageMerge, StageDownload:
		return true
	}
	return false
}

// StopReason explains why a stage returned.
type StopReason string

const (
	StopCompleted    StopReason = "completed"
	StopCancelled    StopReason = "cancelled"
	StopRuntimeLimit StopReason = "runtime_limit"
	StopMaxRows      StopReason = "max_rows"
	StopAuth         StopReason = "auth_failed"
	StopFailed       StopReason = "failed"
)

// Run is one execution of a pipeline stage, recorded in the run ledger.
type Run struct {
	id         string
	sequence   int
	stage      Stage
	checkpoint string
	processed  int
	succeeded  int
	failed     int
	remaining  int
	stopReason StopReason
	startedAt  time.Time
	finishedAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewRun creates a run for stage writing to checkpoint, started now.
func NewRun(sequence int, stage Stage, checkpoint string) *Run {
	now := time.Now()
	return &Run{
		sequence:   sequence,
		stage:      stage,
		checkpoint: checkpoint,
		startedAt:  now,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (r *Run) ID() string             { return r.id }
func (r *Run) Sequence() int          { return r.sequence }
func (r *Run) Stage() Stage           { return r.stage }
func (r *Run) Checkpoint() string     { return r.checkpoint }
func (r *Run) Processed() int         { return r.processed }
func (r *Run) Succeeded() int         { return r.succeeded }
func (r *Run) Failed() int            { return r.failed }
func (r *Run) Remaining() int         { return r.remaining }
func (r *Run) StopReason() StopReason { return r.stopReason }
func (r *Run) StartedAt() time.Time   { return r.startedAt }
func (r *Run) FinishedAt() *time.Time { return r.finishedAt }
func (r *Run) CreatedAt() time.Time   { return r.createdAt }
func (r *Run) UpdatedAt() time.Time   { return r.updatedAt }

func (r *Run) SetID(id string)             { r.id = id }
func (r *Run) SetSequence(seq int)         { r.sequence = seq }
func (r *Run) SetStartedAt(t time.Time)    { r.startedAt = t }
func (r *Run) SetCreatedAt(t time.Time)    { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time)    { r.updatedAt = t }
func (r *Run) SetFinishedAt(t *time.Time)  { r.finishedAt = t }
func (r *Run) SetStopReason(sr StopReason) { r.stopReason = sr }
func (r *Run) SetCounts(processed, succeeded, failed, remaining int) {
	r.processed = processed
	r.succeeded = succeeded
	r.failed = failed
	r.remaining = remaining
}

// Finish records the final counters and stop reason.
func (r *Run) Finish(reason StopReason, processed, succeeded, failed, remaining int) {
	now := time.Now()
	r.SetCounts(processed, succeeded, failed, remaining)
	r.stopReason = reason
	r.finishedAt = &now
	r.updatedAt = now
}

// Duration is the wall-clock time of a finished run, or zero while running.
func (r *Run) Duration() time.Duration {
	if r.finishedAt == nil {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Validate checks required fields and counter bounds.
func (r *Run) Validate() error {
	if !r.stage.Valid() {
		return fmt.Errorf("invalid stage %q", r.stage)
	}
	if r.checkpoint == "" {
		return fmt.Errorf("checkpoint path is required")
	}
	if r.processed < 0 || r.succeeded < 0 || r.failed < 0 || r.remaining < 0 {
		return fmt.Errorf("run counters must not be negative")
	}
	if r.succeeded+r.failed > r.processed {
		return fmt.Errorf("succeeded (%d) + failed (%d) exceeds processed (%d)", r.succeeded, r.failed, r.processed)
	}
	return nil
}
