package models

import "time"

// Provenance records which provider's link a master row carries.
type Provenance string

const (
	ProvenancePrimary  Provenance = "primary"  // provider A
	ProvenanceFallback Provenance = "fallback" // provider B, used because A had no link
	ProvenanceNone     Provenance = "none"
)

// ParseProvenance reads a checkpoint value, accepting the origin labels
// written by the older merge script.
func ParseProvenance(s string) Provenance {
	switch s {
	case "primary", "songstats":
		return ProvenancePrimary
	case "fallback", "discogs_fallback", "discogs":
		return ProvenanceFallback
	default:
		return ProvenanceNone
	}
}

// LookupResult is the state a single provider attached to a track.
type LookupResult struct {
	Link   string
	Status LookupStatus
	Note   string
	At     time.Time
}

// Found reports whether the result carries a usable link.
func (r LookupResult) Found() bool {
	return r.Status == LookupFound && r.Link != ""
}

// LookupRow is one row of a provider checkpoint.
type LookupRow struct {
	Track
	Lookup LookupResult
}

// MasterRecord is the reconciled view of a track.
type MasterRecord struct {
	Track
	Link       string
	Provenance Provenance
	// AltLink is provider B's link when both providers found different links.
	AltLink string
	Note    string
}

// DownloadRecord is one row of the download checkpoint.
type DownloadRecord struct {
	MasterRecord
	Status           DownloadStatus
	FilePath         string
	ActualDurationMS int
	Attempts         int
	SearchedLink     string
	At               time.Time
	MetadataEmbedded bool
	// DownloadNote explains the last failure.
	DownloadNote string
}

// NewDownloadRecord creates a pending download row from a master row.
func NewDownloadRecord(m MasterRecord) DownloadRecord {
	return DownloadRecord{MasterRecord: m, Status: DownloadPending}
}
