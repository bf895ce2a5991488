package models

import "strings"

// LookupStatus is the per-row state of one provider lookup.
type LookupStatus string

const (
	LookupNotAttempted LookupStatus = "not_attempted"
	LookupFound        LookupStatus = "found"
	LookupNotFound     LookupStatus = "not_found"
	LookupError        LookupStatus = "error"
)

// LookupOutcome is the three-way classification of a provider call.
type LookupOutcome int

const (
	OutcomeFound LookupOutcome = iota
	OutcomeNotFound
	OutcomeError
)

func (o LookupOutcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLookupStatus reads a checkpoint value, including the values written
// by the older scraping scripts ("done", "no_yt", "no_isrc").
//
// Unrecognised values are treated as errors so they are never retried
// silently; a forced retry picks them up.
func ParseLookupStatus(s string) LookupStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "not_attempted":
		return LookupNotAttempted
	case "found", "done":
		return LookupFound
	case "not_found", "no_yt", "no_isrc":
		return LookupNotFound
	case "error":
		return LookupError
	default:
		return LookupError
	}
}

func (s LookupStatus) String() string { return string(s) }

// IsTerminal reports whether the row is done for a normal (non-forced) run.
func (s LookupStatus) IsTerminal() bool {
	return s == LookupFound || s == LookupNotFound || s == LookupError
}

// NeedsWork reports whether a lookup runner should process the row.
// With force, not-found and error rows are retried; found rows never are.
func (s LookupStatus) NeedsWork(force bool) bool {
	switch s {
	case LookupFound:
		return false
	case LookupNotFound, LookupError:
		return force
	default:
		return true
	}
}

// NextLookupStatus applies an outcome to the current state.
//
// A found row is never downgraded. Outcomes outside the known set map to
// [LookupError].
func NextLookupStatus(cur LookupStatus, o LookupOutcome) LookupStatus {
	if cur == LookupFound {
		return LookupFound
	}
	switch o {
	case OutcomeFound:
		return LookupFound
	case OutcomeNotFound:
		return LookupNotFound
	default:
		return LookupError
	}
}

// DownloadStatus is the per-row state of the download stage.
type DownloadStatus string

const (
	DownloadPending         DownloadStatus = "pending"
	DownloadInProgress      DownloadStatus = "in_progress" // never persisted
	DownloadSuccess         DownloadStatus = "success"
	DownloadFailedNoMatch   DownloadStatus = "failed_no_match"
	DownloadFailedError     DownloadStatus = "failed_error"
	DownloadSkippedExisting DownloadStatus = "skipped_existing"
)

// DownloadOutcome classifies one orchestrator attempt at a row.
type DownloadOutcome int

const (
	OutcomeDownloaded DownloadOutcome = iota
	OutcomeNoMatch
	OutcomeFailed
	OutcomeExisting
)

func (o DownloadOutcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeFailed:
		return "failed"
	case OutcomeExisting:
		return "existing"
	default:
		return "unknown"
	}
}

var legacyNoMatch = []string{"no_search_results", "no_valid_match", "duration_mismatch"}

// ParseDownloadStatus reads a checkpoint value. downloaded is the legacy
// yes/no column; it may be empty.
//
// An in-progress value can only be left behind by a crashed writer, so it
// is read back as pending.
func ParseDownloadStatus(s, downloaded string) DownloadStatus {
	v := strings.ToLower(strings.TrimSpace(s))
	switch DownloadStatus(v) {
	case DownloadPending, DownloadSuccess, DownloadFailedNoMatch, DownloadFailedError, DownloadSkippedExisting:
		return DownloadStatus(v)
	case DownloadInProgress:
		return DownloadPending
	}

	if strings.EqualFold(strings.TrimSpace(downloaded), "yes") {
		if v == "already_exists" {
			return DownloadSkippedExisting
		}
		return DownloadSuccess
	}
	if v == "" {
		return DownloadPending
	}
	for _, marker := range legacyNoMatch {
		if strings.Contains(v, marker) {
			return DownloadFailedNoMatch
		}
	}
	return DownloadFailedError
}

func (s DownloadStatus) String() string { return string(s) }

// IsTerminal reports whether the row is never reprocessed on resume.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case DownloadSuccess, DownloadFailedNoMatch, DownloadFailedError, DownloadSkippedExisting:
		return true
	default:
		return false
	}
}

// IsDone reports whether the row has an audio file on disk.
func (s DownloadStatus) IsDone() bool {
	return s == DownloadSuccess || s == DownloadSkippedExisting
}

// NeedsWork reports whether the orchestrator should process the row.
// retryFailed re-opens failed-error rows; no-match rows stay closed.
func (s DownloadStatus) NeedsWork(retryFailed bool) bool {
	if s == DownloadFailedError {
		return retryFailed
	}
	return !s.IsTerminal()
}

// Begin moves a pending row to the transient in-progress state.
func (s DownloadStatus) Begin() DownloadStatus {
	if s.IsTerminal() && s != DownloadFailedError {
		return s
	}
	return DownloadInProgress
}

// Persisted is the value written to disk for s.
func (s DownloadStatus) Persisted() DownloadStatus {
	if s == DownloadInProgress || s == "" {
		return DownloadPending
	}
	return s
}

// FinishDownload applies an outcome to an in-progress row. Outcomes outside
// the known set map to [DownloadFailedError].
func FinishDownload(o DownloadOutcome) DownloadStatus {
	switch o {
	case OutcomeDownloaded:
		return DownloadSuccess
	case OutcomeNoMatch:
		return DownloadFailedNoMatch
	case OutcomeExisting:
		return DownloadSkippedExisting
	default:
		return DownloadFailedError
	}
}
