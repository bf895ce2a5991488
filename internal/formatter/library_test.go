package formatter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/llahellec/de-spotify/internal/models"
)

func libraryTracks() []models.Track {
	return []models.Track{
		{URI: "id:1", Artists: "Band", Album: "First", ReleaseDate: "1994-05-01", Genres: "rock, indie", DurationMS: 100000},
		{URI: "id:2", Artists: "Band, Guest", Album: "First", ReleaseDate: "1999", Genres: "rock", DurationMS: 200000},
		{URI: "id:3", Artists: "Solo", Album: "Second", ReleaseDate: "2011-02", Genres: "pop", DurationMS: 250000},
		{URI: "id:4", Artists: "Band", Album: "Third", ReleaseDate: "unknown", DurationMS: 500000},
		{URI: "id:5", Artists: "", Album: "", ReleaseDate: ""},
	}
}

func TestBuildLibrary(t *testing.T) {
	lib := BuildLibrary(libraryTracks())

	t.Run("Totals", func(t *testing.T) {
		if lib.Tracks != 5 || lib.Artists != 3 || lib.Albums != 3 {
			t.Errorf("expected 5 tracks, 3 artists, 3 albums, got %d/%d/%d", lib.Tracks, lib.Artists, lib.Albums)
		}
	})

	breakdowns := []struct {
		name string
		got  []Count
		want []Count
	}{
		{"decades", lib.Decades, []Count{{"1990s", 2}, {"2010s", 1}}},
		{"artists count every listed artist", lib.TopArtists, []Count{{"Band", 3}, {"Guest", 1}, {"Solo", 1}}},
		{"albums", lib.TopAlbums, []Count{{"First", 2}, {"Second", 1}, {"Third", 1}}},
		{"genres", lib.TopGenres, []Count{{"rock", 2}, {"indie", 1}, {"pop", 1}}},
		{"length buckets", lib.Durations.Buckets, []Count{
			{"0-2 min", 1}, {"2-3 min", 0}, {"3-4 min", 1}, {"4-5 min", 1}, {"5-7 min", 0}, {"7+ min", 1},
		}},
	}
	for _, tt := range breakdowns {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, tt.got)
			}
			for i := range tt.want {
				if tt.got[i] != tt.want[i] {
					t.Errorf("entry %d: expected %v, got %v", i, tt.want[i], tt.got[i])
				}
			}
		})
	}

	t.Run("Durations", func(t *testing.T) {
		d := lib.Durations
		if d.Tracks != 4 || d.TotalMS != 1050000 || d.AverageMS != 262500 {
			t.Errorf("unexpected totals %+v", d)
		}
		if d.MedianMS != 225000 || d.Shortest != 100000 || d.Longest != 500000 {
			t.Errorf("unexpected spread %+v", d)
		}
	})

	t.Run("Top Is Bounded", func(t *testing.T) {
		var tracks []models.Track
		for i := range 30 {
			tracks = append(tracks, models.Track{URI: "id", Genres: "genre" + string(rune('a'+i%26)) + string(rune('a'+i/26))})
		}
		if got := len(BuildLibrary(tracks).TopGenres); got != maxTopGenres {
			t.Errorf("expected %d genres, got %d", maxTopGenres, got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		lib := BuildLibrary(nil)
		if lib.Tracks != 0 || len(lib.Decades) != 0 || lib.Durations.Tracks != 0 || lib.Durations.MedianMS != 0 {
			t.Errorf("unexpected empty library %+v", lib)
		}
	})
}

func TestLibraryInReport(t *testing.T) {
	var master []models.MasterRecord
	for _, tr := range libraryTracks() {
		master = append(master, models.MasterRecord{Track: tr, Provenance: models.ProvenanceNone})
	}
	c := BuildCoverage(master, nil)

	out, err := c.Render(FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"## Library", "## Decades", "| 1990s |", "## Top Artists", "## Top Albums", "## Top Genres", "## Track Lengths", "| 7+ min |"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	out, err = c.Render(FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Library Library `json:"library"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Library.Artists != 3 || len(decoded.Library.Decades) != 2 {
		t.Errorf("unexpected library in JSON %+v", decoded.Library)
	}
}
