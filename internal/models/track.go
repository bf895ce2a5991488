package models

import (
	"regexp"
	"strings"
)

var artistURIPattern = regexp.MustCompile(`spotify:artist:\w+,?\s*`)

// Track is one row of the library export.
//
// URI is the identity of the row and must be unique within a run.
// ISRC may be empty, which only disables ISRC-keyed lookups.
type Track struct {
	URI          string
	Title        string
	Artists      string // Comma separated, as exported
	AlbumArtists string
	Album        string
	ReleaseDate  string
	TrackNumber  int
	DiscNumber   int
	DurationMS   int
	ISRC         string
	Genres       string
	Label        string
	Copyright    string
	ArtworkURL   string

	// Extra holds input columns this program does not interpret.
	// They are written back unchanged so checkpoints stay re-readable.
	Extra map[string]string
}

// HasIdentity reports whether the track carries a usable identity.
func (t Track) HasIdentity() bool {
	return strings.TrimSpace(t.URI) != ""
}

// PrimaryArtist returns the first listed artist or "Unknown Artist".
func (t Track) PrimaryArtist() string {
	artists := t.ArtistList()
	if len(artists) == 0 {
		return "Unknown Artist"
	}
	return artists[0]
}

// ArtistList splits the comma separated artist column.
func (t Track) ArtistList() []string {
	var out []string
	for _, a := range strings.Split(t.Artists, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// DisplayArtists renders the artist column for tag frames ("A / B").
func (t Track) DisplayArtists() string {
	return displayArtists(t.Artists)
}

// DisplayAlbumArtists renders the album artist column for tag frames.
func (t Track) DisplayAlbumArtists() string {
	if strings.TrimSpace(t.AlbumArtists) == "" {
		return t.DisplayArtists()
	}
	return displayArtists(t.AlbumArtists)
}

// Year extracts the year from the release date (YYYY, YYYY-MM or YYYY-MM-DD).
func (t Track) Year() string {
	d := strings.TrimSpace(t.ReleaseDate)
	if len(d) < 4 {
		return ""
	}
	return d[:4]
}

// PrimaryGenre returns the first genre listed.
func (t Track) PrimaryGenre() string {
	genre, _, _ := strings.Cut(t.Genres, ",")
	return strings.TrimSpace(genre)
}

func displayArtists(raw string) string {
	cleaned := artistURIPattern.ReplaceAllString(raw, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.ReplaceAll(cleaned, ", ", " / ")
	if cleaned == "" {
		return "Unknown Artist"
	}
	return cleaned
}
