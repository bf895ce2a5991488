package services

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/charmbracelet/log"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// ID3Tagger writes ID3v2 frames, and optionally the cover art, into MP3 files.
type ID3Tagger struct {
	httpClient  *http.Client
	artwork     bool
	artworkSize int
	logger      *log.Logger
}

// NewID3Tagger creates a tagger from the download settings.
func NewID3Tagger(cfg shared.DownloadConfig, client *http.Client, logger *log.Logger) *ID3Tagger {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &ID3Tagger{
		httpClient:  client,
		artwork:     cfg.EmbedArtwork,
		artworkSize: cfg.ArtworkSize,
		logger:      logger,
	}
}

// Tag replaces the descriptive frames of the file at path with the track's metadata.
// A cover that cannot be fetched is skipped; the text frames are still written.
func (t *ID3Tagger) Tag(ctx context.Context, path string, track models.Track) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".mp3" {
		return fmt.Errorf("%w: ID3 tags need an mp3 file, got %s", shared.ErrInvalidInput, ext)
	}

	var cover []byte
	if t.artwork && track.ArtworkURL != "" {
		data, err := FetchArtwork(ctx, t.httpClient, track.ArtworkURL, t.artworkSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("skipping artwork", "url", track.ArtworkURL, "err", err)
		}
		cover = data
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: open tags of %s: %w", shared.ErrFilesystem, path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetVersion(4)
	writeFrames(tag, track)

	if cover != nil {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("%w: save tags of %s: %w", shared.ErrFilesystem, path, err)
	}
	return nil
}

func writeFrames(tag *id3v2.Tag, track models.Track) {
	text := func(id, value string) {
		tag.DeleteFrames(id)
		if value != "" {
			tag.AddTextFrame(id, id3v2.EncodingUTF8, value)
		}
	}

	tag.SetTitle(track.Title)
	tag.SetArtist(track.DisplayArtists())
	tag.SetAlbum(track.Album)
	text("TPE2", track.DisplayAlbumArtists())
	text("TDRC", strings.TrimSpace(track.ReleaseDate))
	text("TCON", track.PrimaryGenre())
	text("TSRC", track.ISRC)
	text("TPUB", track.Label)
	text("TCOP", track.Copyright)
	if track.TrackNumber > 0 {
		text("TRCK", strconv.Itoa(track.TrackNumber))
	}
	if track.DiscNumber > 0 {
		text("TPOS", strconv.Itoa(track.DiscNumber))
	}
}
