package checkpoint

import (
	"math"
	"strconv"
	"strings"

	"github.com/llahellec/de-spotify/internal/models"
)

// Row is one CSV record keyed by normalized column name.
type Row map[string]string

// Get returns the first non-empty value among keys.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeColumn maps a header cell to its lookup key: lowercase, words joined by "_",
// parentheses dropped ("Artist Name(s)" -> "artist_name_s").
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	var b strings.Builder
	underscore := false
	for _, r := range name {
		switch {
		case r == ')':
			continue
		case r == ' ' || r == '(' || r == '-' || r == '_' || r == '.':
			underscore = b.Len() > 0
		default:
			if underscore {
				b.WriteByte('_')
				underscore = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trackField binds a Track attribute to its canonical column and accepted aliases.
type trackField struct {
	key     string
	aliases []string
	get     func(models.Track) string
	set     func(*models.Track, string)
}

var trackFields = []trackField{
	{"track_uri", []string{"uri", "spotify_uri", "track_id", "id"},
		func(t models.Track) string { return t.URI }, func(t *models.Track, v string) { t.URI = v }},
	{"track_name", []string{"title", "name", "track"},
		func(t models.Track) string { return t.Title }, func(t *models.Track, v string) { t.Title = v }},
	{"artist_name_s", []string{"artist_names", "artists", "artist", "artist_name"},
		func(t models.Track) string { return t.Artists }, func(t *models.Track, v string) { t.Artists = v }},
	{"album_name", []string{"album"},
		func(t models.Track) string { return t.Album }, func(t *models.Track, v string) { t.Album = v }},
	{"album_artist_name_s", []string{"album_artist_names", "album_artists", "album_artist"},
		func(t models.Track) string { return t.AlbumArtists }, func(t *models.Track, v string) { t.AlbumArtists = v }},
	{"album_release_date", []string{"release_date"},
		func(t models.Track) string { return t.ReleaseDate }, func(t *models.Track, v string) { t.ReleaseDate = v }},
	{"album_image_url", []string{"artwork_url", "image_url", "album_art"},
		func(t models.Track) string { return t.ArtworkURL }, func(t *models.Track, v string) { t.ArtworkURL = v }},
	{"disc_number", nil,
		func(t models.Track) string { return formatInt(t.DiscNumber) }, func(t *models.Track, v string) { t.DiscNumber = parseInt(v) }},
	{"track_number", nil,
		func(t models.Track) string { return formatInt(t.TrackNumber) }, func(t *models.Track, v string) { t.TrackNumber = parseInt(v) }},
	{"track_duration_ms", []string{"duration_ms", "duration"},
		func(t models.Track) string { return formatInt(t.DurationMS) }, func(t *models.Track, v string) { t.DurationMS = parseInt(v) }},
	{"isrc", nil,
		func(t models.Track) string { return t.ISRC }, func(t *models.Track, v string) { t.ISRC = v }},
	{"artist_genres", []string{"genres", "genre"},
		func(t models.Track) string { return t.Genres }, func(t *models.Track, v string) { t.Genres = v }},
	{"label", nil,
		func(t models.Track) string { return t.Label }, func(t *models.Track, v string) { t.Label = v }},
	{"copyrights", []string{"copyright"},
		func(t models.Track) string { return t.Copyright }, func(t *models.Track, v string) { t.Copyright = v }},
}

// canonical maps every accepted alias to its canonical track column.
var canonical = func() map[string]string {
	m := make(map[string]string)
	for _, f := range trackFields {
		m[f.key] = f.key
		for _, a := range f.aliases {
			if _, taken := m[a]; !taken {
				m[a] = f.key
			}
		}
	}
	return m
}()

// TrackColumns is the column order used when no input header is available.
func TrackColumns() []string {
	cols := make([]string, len(trackFields))
	for i, f := range trackFields {
		cols[i] = f.key
	}
	return cols
}

// DecodeTrack reads the track columns of row. Columns it does not know end up in Track.Extra.
func DecodeTrack(row Row) models.Track {
	var t models.Track
	for _, f := range trackFields {
		f.set(&t, strings.TrimSpace(row[f.key]))
	}
	for k, v := range row {
		if _, known := canonical[k]; known || reserved[k] {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]string)
		}
		t.Extra[k] = v
	}
	return t
}

// EncodeTrack writes t under the canonical track columns plus its extra columns.
func EncodeTrack(t models.Track) Row {
	row := make(Row, len(trackFields)+len(t.Extra))
	for k, v := range t.Extra {
		row[k] = v
	}
	for _, f := range trackFields {
		row[f.key] = f.get(t)
	}
	return row
}

// parseInt accepts integers and float renderings such as "200000.0"; anything else is 0.
func parseInt(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
