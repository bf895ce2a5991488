// Discogs link provider
//
// Discogs has no per-track links, but masters and releases carry the YouTube videos of their
// tracks. The provider finds the track's album and matches its videos to the track title.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultDiscogsURL = "https://api.discogs.com"
	defaultUserAgent  = "de-spotify/1.0"

	// MinTitleScore is the share of track title tokens a video title must contain.
	MinTitleScore = 0.66
)

// DiscogsVideo is a video attached to a master or release.
type DiscogsVideo struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type discogsSearchResult struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	MasterID    int    `json:"master_id"`
	MasterURL   string `json:"master_url"`
	ResourceURL string `json:"resource_url"`
}

type discogsSearchResponse struct {
	Results []discogsSearchResult `json:"results"`
}

type discogsVideos struct {
	Videos []DiscogsVideo `json:"videos"`
}

// DiscogsService implements [LinkProvider] with the Discogs database API.
//
// Album video lists are cached for the lifetime of the service, so the tracks of one album cost a
// single round of searches.
type DiscogsService struct {
	baseURL     string
	key         string
	secret      string
	userAgent   string
	searchLimit int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *log.Logger

	mu     sync.Mutex
	albums map[string][]DiscogsVideo
}

// NewDiscogsService creates the provider. The consumer key and secret are required.
func NewDiscogsService(creds shared.DiscogsCredentials, cfg shared.DiscogsConfig, client *http.Client, logger *log.Logger) (*DiscogsService, error) {
	if strings.TrimSpace(creds.ConsumerKey) == "" || strings.TrimSpace(creds.ConsumerSecret) == "" {
		return nil, fmt.Errorf("%w: discogs consumer_key and consumer_secret are required", shared.ErrMissingCredentials)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDiscogsURL
	}
	userAgent := creds.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	return &DiscogsService{
		baseURL:     baseURL,
		key:         creds.ConsumerKey,
		secret:      creds.ConsumerSecret,
		userAgent:   userAgent,
		searchLimit: max(cfg.SearchLimit, 1),
		httpClient:  client,
		limiter:     limiterEvery(cfg.RequestInterval()),
		logger:      shared.WithLogger(logger, "provider", "discogs"),
		albums:      make(map[string][]DiscogsVideo),
	}, nil
}

func (d *DiscogsService) Name() string {
	return "discogs"
}

// Lookup returns the album videos whose titles match the track title, in album order.
func (d *DiscogsService) Lookup(ctx context.Context, track models.Track) ([]Candidate, error) {
	album := shared.CleanAlbumName(strings.TrimSpace(track.Album))
	if album == "" {
		return nil, fmt.Errorf("%w: track has no album", shared.ErrTrackNotFound)
	}
	artist := albumArtist(track)

	videos, err := d.AlbumVideos(ctx, artist, album)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no videos for %s - %s", shared.ErrTrackNotFound, artist, album)
	}

	var candidates []Candidate
	for _, v := range MatchVideos(videos, track.Title) {
		candidates = append(candidates, Candidate{Link: v.URI, Note: fmt.Sprintf("discogs %q", v.Title)})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %d album videos, none titled like %q", shared.ErrTrackNotFound, len(videos), track.Title)
	}
	return candidates, nil
}

// albumArtist is the first album artist, falling back to the first track artist.
func albumArtist(track models.Track) string {
	if first, _, _ := strings.Cut(track.AlbumArtists, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return track.PrimaryArtist()
}

// MatchVideos returns the videos whose title matches title: one normalized title contains the
// other, or the video title holds at least [MinTitleScore] of the title's tokens.
func MatchVideos(videos []DiscogsVideo, title string) []DiscogsVideo {
	want := shared.NormalizeText(title)
	var out []DiscogsVideo
	for _, v := range videos {
		got := shared.NormalizeText(v.Title)
		if want != "" && got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
			out = append(out, v)
			continue
		}
		if shared.TokenContainment(title, v.Title) >= MinTitleScore {
			out = append(out, v)
		}
	}
	return out
}

// AlbumVideos finds the album and returns its videos. Searches run in order until one yields
// videos: fielded master, combined master, fielded release, free-text master.
func (d *DiscogsService) AlbumVideos(ctx context.Context, artist, album string) ([]DiscogsVideo, error) {
	key := shared.NormalizeTrackKey(album, artist)
	d.mu.Lock()
	cached, ok := d.albums[key]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	searches := []struct {
		name   string
		params url.Values
	}{
		{"fielded master", url.Values{"artist": {artist}, "release_title": {album}, "type": {"master"}}},
		{"combined master", url.Values{"title": {artist + " - " + album}, "type": {"master"}}},
		{"fielded release", url.Values{"artist": {artist}, "release_title": {album}}},
		{"query master", url.Values{"q": {artist + " " + album}, "type": {"master"}}},
	}

	var videos []DiscogsVideo
	for _, s := range searches {
		results, err := d.search(ctx, s.params)
		if err != nil {
			return nil, fmt.Errorf("discogs %s search: %w", s.name, err)
		}
		d.logger.Debug("search", "strategy", s.name, "artist", artist, "album", album, "results", len(results))

		videos, err = d.firstVideos(ctx, results)
		if err != nil {
			return nil, err
		}
		if len(videos) > 0 {
			break
		}
	}

	d.mu.Lock()
	d.albums[key] = videos
	d.mu.Unlock()
	return videos, nil
}

func (d *DiscogsService) search(ctx context.Context, params url.Values) ([]discogsSearchResult, error) {
	params.Set("per_page", strconv.Itoa(d.searchLimit))
	params.Set("page", "1")

	var resp discogsSearchResponse
	if err := d.getJSON(ctx, d.baseURL+"/database/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// firstVideos returns the video list of the first result that has one. For each result the master
// link is tried, then a master link built from its id, then the result itself as a release.
func (d *DiscogsService) firstVideos(ctx context.Context, results []discogsSearchResult) ([]DiscogsVideo, error) {
	for _, r := range results {
		var sources []string
		if r.MasterURL != "" {
			sources = append(sources, r.MasterURL)
		}
		if r.MasterID > 0 {
			sources = append(sources, fmt.Sprintf("%s/masters/%d", d.baseURL, r.MasterID))
		}
		if r.ResourceURL != "" {
			sources = append(sources, r.ResourceURL)
		}

		for _, src := range sources {
			videos, err := d.videos(ctx, src)
			if err != nil {
				return nil, err
			}
			if len(videos) > 0 {
				return videos, nil
			}
		}
	}
	return nil, nil
}

// videos fetches the videos of a master or release. A missing or unreadable entry has no videos.
func (d *DiscogsService) videos(ctx context.Context, resource string) ([]DiscogsVideo, error) {
	var entry discogsVideos
	err := d.getJSON(ctx, resource, url.Values{}, &entry)
	switch kind := shared.Classify(err); {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case kind == shared.KindAuth, kind == shared.KindTransient:
		return nil, err
	default:
		d.logger.Warn("could not read videos", "url", resource, "err", err)
		return nil, nil
	}

	var out []DiscogsVideo
	for _, v := range entry.Videos {
		if v.Title != "" && v.URI != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func (d *DiscogsService) getJSON(ctx context.Context, endpoint string, params url.Values, result any) error {
	params.Set("key", d.key)
	params.Set("secret", d.secret)
	header := http.Header{"User-Agent": {d.userAgent}}

	body, err := get(ctx, d.httpClient, d.limiter, d.Name(), endpoint, params, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode discogs response: %w", err)
	}
	return nil
}
