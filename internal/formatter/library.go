package formatter

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

const (
	maxTopArtists = 15
	maxTopAlbums  = 15
	maxTopGenres  = 20
)

// Count is a named tally in a library breakdown.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DurationStats describes track lengths. Tracks without a known duration are left out.
type DurationStats struct {
	Tracks    int     `json:"tracks"`
	TotalMS   int64   `json:"total_ms"`
	AverageMS int     `json:"average_ms"`
	MedianMS  int     `json:"median_ms"`
	Shortest  int     `json:"shortest_ms"`
	Longest   int     `json:"longest_ms"`
	Buckets   []Count `json:"buckets"`
}

// Library summarises what the export contains, independent of link coverage.
type Library struct {
	Tracks     int           `json:"tracks"`
	Artists    int           `json:"artists"`
	Albums     int           `json:"albums"`
	Decades    []Count       `json:"decades"`
	TopArtists []Count       `json:"top_artists"`
	TopAlbums  []Count       `json:"top_albums"`
	TopGenres  []Count       `json:"top_genres"`
	Durations  DurationStats `json:"durations"`
}

// durationBuckets are upper bounds in minutes; the last bucket is open.
var durationBuckets = []struct {
	label string
	below time.Duration
}{
	{"0-2 min", 2 * time.Minute},
	{"2-3 min", 3 * time.Minute},
	{"3-4 min", 4 * time.Minute},
	{"4-5 min", 5 * time.Minute},
	{"5-7 min", 7 * time.Minute},
	{"7+ min", 0},
}

// BuildLibrary counts decades, artists, albums, genres and track lengths.
//
// Every listed artist of a track is counted. Decades come from the first four digits of the
// release date; rows with an unparsable date are skipped.
func BuildLibrary(tracks []models.Track) Library {
	artists, albums, genres, decades := map[string]int{}, map[string]int{}, map[string]int{}, map[int]int{}
	var lengths []int

	for _, t := range tracks {
		for _, a := range t.ArtistList() {
			artists[a]++
		}
		if album := strings.TrimSpace(t.Album); album != "" {
			albums[album]++
		}
		for _, g := range strings.Split(t.Genres, ",") {
			if g = strings.TrimSpace(g); g != "" {
				genres[g]++
			}
		}
		if year, err := strconv.Atoi(t.Year()); err == nil && year > 0 {
			decades[year/10*10]++
		}
		if t.DurationMS > 0 {
			lengths = append(lengths, t.DurationMS)
		}
	}

	lib := Library{
		Tracks:     len(tracks),
		Artists:    len(artists),
		Albums:     len(albums),
		Decades:    []Count{},
		TopArtists: top(artists, maxTopArtists),
		TopAlbums:  top(albums, maxTopAlbums),
		TopGenres:  top(genres, maxTopGenres),
		Durations:  buildDurations(lengths),
	}
	for _, d := range slices.Sorted(maps.Keys(decades)) {
		lib.Decades = append(lib.Decades, Count{Name: strconv.Itoa(d) + "s", Count: decades[d]})
	}
	return lib
}

func buildDurations(lengths []int) DurationStats {
	stats := DurationStats{Tracks: len(lengths), Buckets: make([]Count, len(durationBuckets))}
	for i, b := range durationBuckets {
		stats.Buckets[i].Name = b.label
	}
	if len(lengths) == 0 {
		return stats
	}

	slices.Sort(lengths)
	for _, ms := range lengths {
		stats.TotalMS += int64(ms)
		d := time.Duration(ms) * time.Millisecond
		for i, b := range durationBuckets {
			if b.below == 0 || d < b.below {
				stats.Buckets[i].Count++
				break
			}
		}
	}

	n := len(lengths)
	stats.AverageMS = int(stats.TotalMS / int64(n))
	stats.MedianMS = lengths[n/2]
	if n%2 == 0 {
		stats.MedianMS = (lengths[n/2-1] + lengths[n/2]) / 2
	}
	stats.Shortest = lengths[0]
	stats.Longest = lengths[n-1]
	return stats
}

// top returns the n largest tallies, ties broken by name.
func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for name, c := range counts {
		out = append(out, Count{Name: name, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// sections appends the library tables through section.
func (l Library) sections(section func(string, table.Writer)) {
	summary := newTable([]string{"Library", "Value"}, alignLeft, alignRight)
	summary.AppendRow(table.Row{"Tracks", l.Tracks})
	summary.AppendRow(table.Row{"Artists", l.Artists})
	summary.AppendRow(table.Row{"Albums", l.Albums})
	if d := l.Durations; d.Tracks > 0 {
		summary.AppendRow(table.Row{"Total length", (time.Duration(d.TotalMS) * time.Millisecond).Round(time.Minute).String()})
		summary.AppendRow(table.Row{"Average track", shared.FormatDuration(d.AverageMS)})
		summary.AppendRow(table.Row{"Median track", shared.FormatDuration(d.MedianMS)})
		summary.AppendRow(table.Row{"Shortest / longest", fmt.Sprintf("%s / %s", shared.FormatDuration(d.Shortest), shared.FormatDuration(d.Longest))})
	}
	section("Library", summary)

	counts := func(title, column string, rows []Count) {
		if len(rows) == 0 {
			return
		}
		tw := newTable([]string{column, "Tracks", "Share"}, alignLeft, alignRight, alignRight)
		for _, r := range rows {
			tw.AppendRow(table.Row{r.Name, r.Count, formatPercent(r.Count, l.Tracks)})
		}
		section(title, tw)
	}
	counts("Decades", "Decade", l.Decades)
	counts("Top Artists", "Artist", l.TopArtists)
	counts("Top Albums", "Album", l.TopAlbums)
	counts("Top Genres", "Genre", l.TopGenres)
	if l.Durations.Tracks > 0 {
		counts("Track Lengths", "Length", l.Durations.Buckets)
	}
}
