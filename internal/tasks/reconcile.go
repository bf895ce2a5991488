package tasks

import (
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// ReconcileStats counts how the master rows were resolved.
type ReconcileStats struct {
	Total    int
	Primary  int // Link from provider A
	Fallback int // Link from provider B because A had none
	None     int
	OnlyInA  int
	OnlyInB  int
	// Differing counts rows where both providers found a link and the links differ.
	Differing int
}

// Coverage is the share of rows with a link, in percent.
func (s ReconcileStats) Coverage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Primary+s.Fallback) / float64(s.Total) * 100
}

// Reconcile combines the checkpoints of provider A (primary) and provider B (fallback) by track
// identity.
//
// A found link from A always wins; B's link is used only when A has none. Rows come out in A's order
// followed by rows only B knows, in B's order. Descriptive fields are A's, with empty fields filled
// from B. Rows without an identity are never matched and pass through on their own. When an input
// repeats an identity, its first row is used.
func Reconcile(rowsA, rowsB []models.LookupRow) ([]models.MasterRecord, ReconcileStats) {
	byURI := make(map[string]int, len(rowsB))
	for i, b := range rowsB {
		if !b.HasIdentity() {
			continue
		}
		if _, seen := byURI[b.URI]; !seen {
			byURI[b.URI] = i
		}
	}

	var stats ReconcileStats
	out := make([]models.MasterRecord, 0, max(len(rowsA), len(rowsB)))
	usedB := make(map[int]bool, len(rowsB))
	seenA := make(map[string]bool, len(rowsA))

	for i := range rowsA {
		a := &rowsA[i]
		if a.HasIdentity() {
			if seenA[a.URI] {
				continue
			}
			seenA[a.URI] = true
		}

		var b *models.LookupRow
		if j, ok := byURI[a.URI]; ok && a.HasIdentity() {
			b = &rowsB[j]
			usedB[j] = true
		} else {
			stats.OnlyInA++
		}
		out = append(out, resolve(a, b, &stats))
	}

	for j := range rowsB {
		b := &rowsB[j]
		if usedB[j] {
			continue
		}
		if b.HasIdentity() {
			if seenA[b.URI] || byURI[b.URI] != j {
				continue
			}
		}
		stats.OnlyInB++
		out = append(out, resolve(nil, b, &stats))
	}

	stats.Total = len(out)
	return out, stats
}

// resolve builds the master row for one identity. Either side may be nil, not both.
func resolve(a, b *models.LookupRow, stats *ReconcileStats) models.MasterRecord {
	var m models.MasterRecord
	switch {
	case a != nil && b != nil:
		m.Track = mergeTrack(a.Track, b.Track)
	case a != nil:
		m.Track = a.Track
	default:
		m.Track = b.Track
	}

	aFound := a != nil && a.Lookup.Found()
	bFound := b != nil && b.Lookup.Found()

	switch {
	case aFound:
		m.Link = a.Lookup.Link
		m.Provenance = models.ProvenancePrimary
		m.Note = a.Lookup.Note
		if bFound && shared.CanonicalYouTubeURL(b.Lookup.Link) != shared.CanonicalYouTubeURL(a.Lookup.Link) {
			m.AltLink = b.Lookup.Link
			stats.Differing++
		}
		stats.Primary++
	case bFound:
		m.Link = b.Lookup.Link
		m.Provenance = models.ProvenanceFallback
		m.Note = b.Lookup.Note
		stats.Fallback++
	default:
		m.Provenance = models.ProvenanceNone
		if a != nil {
			m.Note = a.Lookup.Note
		}
		if m.Note == "" && b != nil {
			m.Note = b.Lookup.Note
		}
		stats.None++
	}
	return m
}

// mergeTrack keeps a's descriptive fields and fills the empty ones from b.
func mergeTrack(a, b models.Track) models.Track {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fillInt := func(dst *int, src int) {
		if *dst == 0 {
			*dst = src
		}
	}

	fill(&a.Title, b.Title)
	fill(&a.Artists, b.Artists)
	fill(&a.AlbumArtists, b.AlbumArtists)
	fill(&a.Album, b.Album)
	fill(&a.ReleaseDate, b.ReleaseDate)
	fill(&a.ISRC, b.ISRC)
	fill(&a.Genres, b.Genres)
	fill(&a.Label, b.Label)
	fill(&a.Copyright, b.Copyright)
	fill(&a.ArtworkURL, b.ArtworkURL)
	fillInt(&a.TrackNumber, b.TrackNumber)
	fillInt(&a.DiscNumber, b.DiscNumber)
	fillInt(&a.DurationMS, b.DurationMS)

	if len(b.Extra) > 0 {
		extra := make(map[string]string, len(a.Extra)+len(b.Extra))
		for k, v := range b.Extra {
			extra[k] = v
		}
		for k, v := range a.Extra {
			if v != "" || extra[k] == "" {
				extra[k] = v
			}
		}
		a.Extra = extra
	}
	return a
}

// Merge reconciles the provider checkpoints and writes the master checkpoint through saver.
func Merge(rowsA, rowsB []models.LookupRow, saver Saver[models.MasterRecord], progress chan<- ProgressUpdate) ([]models.MasterRecord, ReconcileStats, error) {
	master, stats := Reconcile(rowsA, rowsB)
	if err := persist(saver, master); err != nil {
		return nil, stats, err
	}
	sendProgress(progress, reconcileUpdate(stats))
	return master, stats, nil
}
