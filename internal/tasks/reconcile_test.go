package tasks

import (
	"path/filepath"
	"testing"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	tu "github.com/llahellec/de-spotify/internal/testing"
)

func found(uri, link string) models.LookupRow {
	return models.LookupRow{
		Track:  models.Track{URI: uri, Title: "Title " + uri, Artists: "Artist"},
		Lookup: models.LookupResult{Status: models.LookupFound, Link: link, Note: "matched"},
	}
}

func missing(uri string, status models.LookupStatus) models.LookupRow {
	return models.LookupRow{
		Track:  models.Track{URI: uri, Title: "Title " + uri, Artists: "Artist"},
		Lookup: models.LookupResult{Status: status, Note: string(status)},
	}
}

func TestReconcile(t *testing.T) {
	rowsA := []models.LookupRow{
		found("id:1", "https://www.youtube.com/watch?v=aaaaaaaaaaa"),
		missing("id:2", models.LookupNotFound),
		found("id:3", "https://www.youtube.com/watch?v=ccccccccccc"),
		missing("id:4", models.LookupError),
		missing("id:5", models.LookupNotAttempted),
	}
	rowsB := []models.LookupRow{
		found("id:6", "https://www.youtube.com/watch?v=fffffffffff"),
		found("id:1", "https://www.youtube.com/watch?v=bbbbbbbbbbb"),
		found("id:2", "https://www.youtube.com/watch?v=ddddddddddd"),
		found("id:3", "https://youtu.be/ccccccccccc"),
		missing("id:4", models.LookupNotFound),
	}

	master, stats := Reconcile(rowsA, rowsB)

	tests := []struct {
		uri        string
		link       string
		provenance models.Provenance
		alt        string
	}{
		{"id:1", "https://www.youtube.com/watch?v=aaaaaaaaaaa", models.ProvenancePrimary, "https://www.youtube.com/watch?v=bbbbbbbbbbb"},
		{"id:2", "https://www.youtube.com/watch?v=ddddddddddd", models.ProvenanceFallback, ""},
		{"id:3", "https://www.youtube.com/watch?v=ccccccccccc", models.ProvenancePrimary, ""},
		{"id:4", "", models.ProvenanceNone, ""},
		{"id:5", "", models.ProvenanceNone, ""},
		{"id:6", "https://www.youtube.com/watch?v=fffffffffff", models.ProvenanceFallback, ""},
	}

	if len(master) != len(tests) {
		t.Fatalf("expected %d master rows, got %d", len(tests), len(master))
	}
	for i, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			m := master[i]
			if m.URI != tt.uri {
				t.Fatalf("row %d: URI = %q, want %q (A order, then B-only rows)", i, m.URI, tt.uri)
			}
			if m.Link != tt.link {
				t.Errorf("Link = %q, want %q", m.Link, tt.link)
			}
			if m.Provenance != tt.provenance {
				t.Errorf("Provenance = %q, want %q", m.Provenance, tt.provenance)
			}
			if m.AltLink != tt.alt {
				t.Errorf("AltLink = %q, want %q", m.AltLink, tt.alt)
			}
		})
	}

	want := ReconcileStats{Total: 6, Primary: 2, Fallback: 2, None: 2, OnlyInA: 1, OnlyInB: 1, Differing: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if got := stats.Coverage(); got < 66.6 || got > 66.7 {
		t.Errorf("Coverage() = %v, want ~66.67", got)
	}
}

func TestReconcile_PriorityAndFallbackLaws(t *testing.T) {
	statuses := []models.LookupStatus{models.LookupNotAttempted, models.LookupFound, models.LookupNotFound, models.LookupError}

	for _, sa := range statuses {
		for _, sb := range statuses {
			a := missing("id:1", sa)
			b := missing("id:1", sb)
			if sa == models.LookupFound {
				a = found("id:1", "https://www.youtube.com/watch?v=aaaaaaaaaaa")
			}
			if sb == models.LookupFound {
				b = found("id:1", "https://www.youtube.com/watch?v=bbbbbbbbbbb")
			}

			master, _ := Reconcile([]models.LookupRow{a}, []models.LookupRow{b})
			if len(master) != 1 {
				t.Fatalf("A=%s B=%s: expected one row, got %d", sa, sb, len(master))
			}
			m := master[0]

			switch {
			case sa == models.LookupFound:
				if m.Provenance != models.ProvenancePrimary || m.Link != a.Lookup.Link {
					t.Errorf("A=%s B=%s: expected primary with A's link, got %s %q", sa, sb, m.Provenance, m.Link)
				}
			case sb == models.LookupFound:
				if m.Provenance != models.ProvenanceFallback || m.Link != b.Lookup.Link {
					t.Errorf("A=%s B=%s: expected fallback with B's link, got %s %q", sa, sb, m.Provenance, m.Link)
				}
			default:
				if m.Provenance != models.ProvenanceNone || m.Link != "" {
					t.Errorf("A=%s B=%s: expected none, got %s %q", sa, sb, m.Provenance, m.Link)
				}
			}
		}
	}
}

func TestReconcile_DescriptiveFieldsPreferA(t *testing.T) {
	a := found("id:1", "https://www.youtube.com/watch?v=aaaaaaaaaaa")
	a.Album = "Album from A"
	a.Extra = map[string]string{"popularity": "10"}

	b := missing("id:1", models.LookupNotFound)
	b.Title = "Different title"
	b.Album = "Album from B"
	b.ISRC = "US1"
	b.Extra = map[string]string{"popularity": "99", "added_by": "me"}

	master, _ := Reconcile([]models.LookupRow{a}, []models.LookupRow{b})
	m := master[0]

	if m.Title != a.Title || m.Album != "Album from A" {
		t.Errorf("A's descriptive fields should win, got %q / %q", m.Title, m.Album)
	}
	if m.ISRC != "US1" {
		t.Errorf("empty fields should be filled from B, got ISRC %q", m.ISRC)
	}
	if m.Extra["popularity"] != "10" || m.Extra["added_by"] != "me" {
		t.Errorf("unexpected extra columns %v", m.Extra)
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	rowsA := []models.LookupRow{
		found("id:1", "https://www.youtube.com/watch?v=aaaaaaaaaaa"),
		missing("id:2", models.LookupNotFound),
		{Track: models.Track{Title: "no identity"}, Lookup: models.LookupResult{Status: models.LookupError}},
	}
	rowsB := []models.LookupRow{
		found("id:2", "https://www.youtube.com/watch?v=bbbbbbbbbbb"),
		found("id:9", "https://www.youtube.com/watch?v=zzzzzzzzzzz"),
		{Track: models.Track{Title: "also no identity"}, Lookup: models.LookupResult{Status: models.LookupNotFound}},
	}
	store := checkpoint.NewMaster(filepath.Join(t.TempDir(), "master.csv"), checkpoint.Layout{})

	first, _ := Reconcile(rowsA, rowsB)
	second, _ := Reconcile(rowsA, rowsB)

	b1, err := store.Encode(first)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := store.Encode(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Errorf("reconcile output differs between runs:\n%s\n---\n%s", b1, b2)
	}
	if len(first) != 5 {
		t.Errorf("rows without identity should pass through unmatched, got %d rows", len(first))
	}
}

func TestMerge(t *testing.T) {
	saver := &tu.MemorySaver[models.MasterRecord]{}
	progress := make(chan ProgressUpdate, 4)

	master, stats, err := Merge(
		[]models.LookupRow{missing("id:1", models.LookupNotFound)},
		[]models.LookupRow{found("id:1", "https://www.youtube.com/watch?v=bbbbbbbbbbb")},
		saver, progress,
	)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if saver.Saves != 1 || len(saver.Last) != 1 || saver.Last[0].Provenance != models.ProvenanceFallback {
		t.Errorf("expected the master rows to be saved once, got %+v", saver)
	}
	if stats.Fallback != 1 || len(master) != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	select {
	case u := <-progress:
		if u.Phase != ReconcileRows {
			t.Errorf("expected reconcile phase, got %v", u.Phase)
		}
	default:
		t.Error("expected a progress update")
	}
}
