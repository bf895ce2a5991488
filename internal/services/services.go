package services

import (
	"context"

	"github.com/llahellec/de-spotify/internal/models"
)

// LinkProvider looks up a YouTube link for a track.
type LinkProvider interface {
	// Lookup returns candidate links, best first.
	//
	// No candidates with a nil error, or an error wrapping shared.ErrTrackNotFound, means the
	// provider has no link for the track. Errors wrapping shared.ErrAuthFailed abort the stage.
	Lookup(ctx context.Context, track models.Track) ([]Candidate, error)

	// Name returns the name of the provider (e.g., "songstats", "discogs")
	Name() string
}

// Candidate is a link offered by a provider.
type Candidate struct {
	Link string
	Note string // How the link was found
}

// ISRCResolver finds the ISRC of a track from its catalogue identity.
type ISRCResolver interface {
	ResolveISRC(ctx context.Context, uri string) (string, error)
}

// Media describes a playable video.
type Media struct {
	ID         string
	Title      string
	URL        string
	DurationMS int // Zero when unknown
}

// Downloader is the audio capability used by the download stage.
type Downloader interface {
	// Probe reads the metadata of url without downloading it.
	Probe(ctx context.Context, url string) (*Media, error)

	// Search returns up to limit results for query, in the order the site ranks them.
	Search(ctx context.Context, query string, limit int) ([]Media, error)

	// Fetch downloads url as audio next to base (a path without extension) and returns the
	// path of the written file.
	Fetch(ctx context.Context, url, base string) (string, error)
}

// Tagger writes descriptive metadata into an audio file.
type Tagger interface {
	Tag(ctx context.Context, path string, track models.Track) error
}

// AudioInspector reports whether path holds a readable audio file.
type AudioInspector interface {
	IsAudio(path string) bool
}

var (
	_ LinkProvider   = (*SongstatsService)(nil)
	_ LinkProvider   = (*DiscogsService)(nil)
	_ ISRCResolver   = (*SpotifyService)(nil)
	_ Downloader     = (*YtDlpService)(nil)
	_ Tagger         = (*ID3Tagger)(nil)
	_ AudioInspector = FileInspector{}
)
