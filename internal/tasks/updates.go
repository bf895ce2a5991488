package tasks

import (
	"fmt"
	"time"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running stage.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase        // Operation phase
	Stage   models.Stage // Stage that emitted the update
	Step    int          // Current step number within phase
	Total   int          // Total steps in this phase
	Message string       // Human-readable message for display
	Data    any          // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadRows Phase = iota
	LookupRow
	ReconcileRows
	DownloadRow
	Pause
	SaveCheckpoint
	Finished
)

func (p Phase) String() string {
	switch p {
	case LoadRows:
		return "load_rows"
	case LookupRow:
		return "lookup_row"
	case ReconcileRows:
		return "reconcile"
	case DownloadRow:
		return "download_row"
	case Pause:
		return "pause"
	case SaveCheckpoint:
		return "save_checkpoint"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func loadRowsUpdate(stage models.Stage, pending, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadRows,
		Stage:   stage,
		Step:    0,
		Total:   pending,
		Message: fmt.Sprintf("%d of %d rows need work", pending, total),
	}
}

func lookupRowUpdate(stage models.Stage, step, total int, row *models.LookupRow) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s - %s: %s", step, total, row.PrimaryArtist(), row.Title, row.Lookup.Status)
	if row.Lookup.Found() {
		msg += " " + row.Lookup.Link
	}
	return ProgressUpdate{
		Phase:   LookupRow,
		Stage:   stage,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    row.Lookup,
	}
}

func reconcileUpdate(stats ReconcileStats) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReconcileRows,
		Stage:   models.StageMerge,
		Step:    stats.Total,
		Total:   stats.Total,
		Message: fmt.Sprintf("primary %d, fallback %d, none %d", stats.Primary, stats.Fallback, stats.None),
		Data:    stats,
	}
}

func downloadRowUpdate(step, total int, rec *models.DownloadRecord) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s - %s (%s): %s", step, total,
		rec.PrimaryArtist(), rec.Title, shared.FormatDuration(rec.DurationMS), rec.Status)
	if rec.DownloadNote != "" && !rec.Status.IsDone() {
		msg += ": " + rec.DownloadNote
	}
	return ProgressUpdate{
		Phase:   DownloadRow,
		Stage:   models.StageDownload,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    rec.Status,
	}
}

func pauseUpdate(stage models.Stage, d time.Duration, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Pause,
		Stage:   stage,
		Message: fmt.Sprintf("%s: pausing %s", reason, d.Round(time.Second)),
		Data:    d,
	}
}

func saveUpdate(stage models.Stage, path string, processed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveCheckpoint,
		Stage:   stage,
		Step:    processed,
		Message: fmt.Sprintf("checkpoint saved: %s", path),
	}
}

func finishedUpdate(stage models.Stage, report Report) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finished,
		Stage:   stage,
		Step:    report.Processed,
		Total:   report.Processed + report.Remaining,
		Message: report.String(),
		Data:    report,
	}
}
