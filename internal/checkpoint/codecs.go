package checkpoint

import (
	"strconv"
	"strings"
	"time"

	"github.com/llahellec/de-spotify/internal/models"
)

const (
	colLink             = "link"
	colLookupStatus     = "lookup_status"
	colLookupNote       = "lookup_note"
	colLookedUpAt       = "looked_up_at"
	colProvenance       = "provenance"
	colAltLink          = "alt_link"
	colDownloadStatus   = "download_status"
	colFilePath         = "file_path"
	colActualDuration   = "actual_duration_ms"
	colAttempts         = "attempts"
	colSearchedLink     = "searched_link"
	colDownloadedAt     = "downloaded_at"
	colMetadataEmbedded = "metadata_embedded"
	colDownloadNote     = "download_note"

	// Written by the older scripts.
	legacyURL            = "yt_url"
	legacyStatus         = "status"
	legacyOrigin         = "yt_url_origin"
	legacyDownloaded     = "downloaded"
	legacyDownloadDate   = "download_date"
	legacyActualDuration = "actual_duration"
	legacySearchedURL    = "searched_url"
)

// LookupCodec is the row format of a provider checkpoint.
type LookupCodec struct{}

func (LookupCodec) Columns() []string {
	return []string{colLink, colLookupStatus, colLookupNote, colLookedUpAt}
}

func (LookupCodec) Identity(r models.LookupRow) string { return r.URI }

func (LookupCodec) Decode(row Row) (models.LookupRow, error) {
	out := models.LookupRow{Track: DecodeTrack(row)}
	out.Lookup = decodeLookup(row)
	return out, nil
}

func (LookupCodec) Encode(r models.LookupRow) Row {
	row := EncodeTrack(r.Track)
	row[colLink] = r.Lookup.Link
	row[colLookupStatus] = string(r.Lookup.Status)
	row[colLookupNote] = r.Lookup.Note
	row[colLookedUpAt] = formatTime(r.Lookup.At)
	return row
}

func decodeLookup(row Row) models.LookupResult {
	status := row.Get(colLookupStatus)
	if status == "" {
		status = row.Get(legacyStatus)
	}
	res := models.LookupResult{
		Link:   row.Get(colLink, legacyURL),
		Status: models.ParseLookupStatus(status),
		Note:   row.Get(colLookupNote),
		At:     parseTime(row.Get(colLookedUpAt)),
	}
	// The old scripts left status empty for rows whose link was filled in by hand.
	if res.Status == models.LookupNotAttempted && res.Link != "" {
		res.Status = models.LookupFound
	}
	return res
}

// MasterCodec is the row format of the reconciled checkpoint.
type MasterCodec struct{}

func (MasterCodec) Columns() []string {
	return []string{colLink, colProvenance, colAltLink, colLookupNote}
}

func (MasterCodec) Identity(r models.MasterRecord) string { return r.URI }

func (MasterCodec) Decode(row Row) (models.MasterRecord, error) {
	return decodeMaster(row), nil
}

func (MasterCodec) Encode(r models.MasterRecord) Row {
	row := EncodeTrack(r.Track)
	encodeMaster(row, r)
	return row
}

func decodeMaster(row Row) models.MasterRecord {
	m := models.MasterRecord{
		Track:   DecodeTrack(row),
		Link:    row.Get(colLink, legacyURL),
		AltLink: row.Get(colAltLink),
		Note:    row.Get(colLookupNote),
	}
	switch {
	case row.Get(colProvenance) != "":
		m.Provenance = models.ParseProvenance(row.Get(colProvenance))
	case m.Link == "":
		m.Provenance = models.ProvenanceNone
	case row.Get(legacyOrigin) != "":
		m.Provenance = models.ParseProvenance(row.Get(legacyOrigin))
	default:
		// Legacy master files left the origin empty for Songstats links.
		m.Provenance = models.ProvenancePrimary
	}
	return m
}

func encodeMaster(row Row, m models.MasterRecord) {
	row[colLink] = m.Link
	row[colProvenance] = string(m.Provenance)
	row[colAltLink] = m.AltLink
	row[colLookupNote] = m.Note
}

// DownloadCodec is the row format of the download checkpoint.
//
// An in-progress row is written as pending.
type DownloadCodec struct{}

func (DownloadCodec) Columns() []string {
	return append(MasterCodec{}.Columns(),
		colDownloadStatus, colFilePath, colActualDuration, colAttempts,
		colSearchedLink, colDownloadedAt, colMetadataEmbedded, colDownloadNote,
	)
}

func (DownloadCodec) Identity(r models.DownloadRecord) string { return r.URI }

func (DownloadCodec) Decode(row Row) (models.DownloadRecord, error) {
	d := models.DownloadRecord{
		MasterRecord:     decodeMaster(row),
		Status:           models.ParseDownloadStatus(row.Get(colDownloadStatus), row.Get(legacyDownloaded)),
		FilePath:         row.Get(colFilePath),
		ActualDurationMS: parseInt(row.Get(colActualDuration)),
		Attempts:         parseInt(row.Get(colAttempts)),
		SearchedLink:     row.Get(colSearchedLink, legacySearchedURL),
		At:               parseTime(row.Get(colDownloadedAt, legacyDownloadDate)),
		MetadataEmbedded: parseBool(row.Get(colMetadataEmbedded)),
		DownloadNote:     row.Get(colDownloadNote),
	}
	if raw := row.Get(colDownloadStatus); d.DownloadNote == "" && d.Status == models.DownloadFailedError && raw != string(d.Status) {
		d.DownloadNote = raw
	}
	if d.ActualDurationMS == 0 {
		if secs, err := strconv.ParseFloat(row.Get(legacyActualDuration), 64); err == nil {
			d.ActualDurationMS = int(secs * 1000)
		}
	}
	return d, nil
}

func (DownloadCodec) Encode(r models.DownloadRecord) Row {
	row := EncodeTrack(r.Track)
	encodeMaster(row, r.MasterRecord)
	row[colDownloadStatus] = string(r.Status.Persisted())
	row[colFilePath] = r.FilePath
	row[colActualDuration] = formatInt(r.ActualDurationMS)
	row[colAttempts] = formatInt(r.Attempts)
	row[colSearchedLink] = r.SearchedLink
	row[colDownloadedAt] = formatTime(r.At)
	row[colMetadataEmbedded] = formatBool(r.MetadataEmbedded)
	row[colDownloadNote] = r.DownloadNote
	return row
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
