// yt-dlp implementation of [Downloader]
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/llahellec/de-spotify/internal/shared"
)

// unavailableMarkers identify a stream that is gone for good.
var unavailableMarkers = []string{
	"video unavailable",
	"private video",
	"copyright",
	"has been removed",
	"is not available",
	"no video formats found",
	"members-only",
	"confirm your age",
	"unsupported url",
	"is not a valid url",
}

// transientMarkers identify failures worth retrying later.
var transientMarkers = []string{
	"not a bot",
	"http error 429",
	"http error 5",
	"timed out",
	"connection reset",
	"connection refused",
	"temporary failure",
	"network is unreachable",
	"unable to download webpage",
	"read operation timed out",
}

// YtDlpService drives the yt-dlp executable through go-ytdlp.
type YtDlpService struct {
	executable string
	cookies    string
	format     string
	quality    string
}

// NewYtDlpService creates the downloader. An empty executable path lets go-ytdlp resolve yt-dlp
// from PATH or its cache.
func NewYtDlpService(cfg shared.DownloadConfig) *YtDlpService {
	format := cfg.AudioFormat
	if format == "" {
		format = "mp3"
	}
	quality := cfg.AudioQuality
	if quality == "" {
		quality = "0"
	}
	return &YtDlpService{
		executable: cfg.YtDlpPath,
		cookies:    cfg.CookiesFile,
		format:     format,
		quality:    quality,
	}
}

func (y *YtDlpService) command() *ytdlp.Command {
	cmd := ytdlp.New().NoPlaylist()
	if y.executable != "" {
		cmd.SetExecutable(y.executable)
	}
	if y.cookies != "" {
		cmd.Cookies(y.cookies)
	}
	return cmd
}

// Probe reads the metadata of a video without downloading it.
func (y *YtDlpService) Probe(ctx context.Context, url string) (*Media, error) {
	res, err := y.command().SkipDownload().DumpJSON().Run(ctx, url)
	if err != nil {
		return nil, ytdlpError(ctx, "probe "+url, res, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("probe %s: parse yt-dlp output: %w", url, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: yt-dlp returned nothing for %s", shared.ErrTrackNotFound, url)
	}
	m := toMedia(infos[0])
	if m.URL == "" {
		m.URL = url
	}
	return &m, nil
}

// Search returns up to limit videos for query, in search rank order.
func (y *YtDlpService) Search(ctx context.Context, query string, limit int) ([]Media, error) {
	target := fmt.Sprintf("ytsearch%d:%s", max(limit, 1), query)
	res, err := y.command().SkipDownload().DumpJSON().Run(ctx, target)
	if err != nil {
		return nil, ytdlpError(ctx, "search "+query, res, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("search %q: parse yt-dlp output: %w", query, err)
	}

	var results []Media
	for _, info := range infos {
		if m := toMedia(info); m.URL != "" {
			results = append(results, m)
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no search results for %q", shared.ErrTrackNotFound, query)
	}
	return results, nil
}

// Fetch downloads the audio of url and converts it to base.<format>.
func (y *YtDlpService) Fetch(ctx context.Context, url, base string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrFilesystem, err)
	}

	res, err := y.command().
		ExtractAudio().
		AudioFormat(y.format).
		AudioQuality(y.quality).
		Output(base + ".%(ext)s").
		Run(ctx, url)
	if err != nil {
		return "", ytdlpError(ctx, "download "+url, res, err)
	}

	path := base + "." + y.format
	if !shared.FileExists(path) {
		return "", fmt.Errorf("yt-dlp finished but %s was not written", path)
	}
	return path, nil
}

func toMedia(info *ytdlp.ExtractedInfo) Media {
	m := Media{ID: info.ID}
	if info.Title != nil {
		m.Title = *info.Title
	}
	if info.WebpageURL != nil {
		m.URL = shared.CanonicalYouTubeURL(*info.WebpageURL)
	} else if info.ID != "" {
		m.URL = youTubeWatchPrefix + info.ID
	}
	if info.Duration != nil {
		m.DurationMS = int(*info.Duration * 1000)
	}
	return m
}

// ytdlpError classifies a failed yt-dlp run from its error and stderr.
func ytdlpError(ctx context.Context, op string, res *ytdlp.Result, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	text := err.Error()
	if res != nil {
		text += "\n" + res.Stderr
	}
	return classifyYtDlpOutput(op, text, err)
}

func classifyYtDlpOutput(op, output string, err error) error {
	lower := strings.ToLower(output)
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %s: %w", shared.ErrTransient, op, err)
		}
	}
	for _, m := range unavailableMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %s: %w", shared.ErrTrackNotFound, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
