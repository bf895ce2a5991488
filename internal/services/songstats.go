// Songstats link provider
//
// Songstats publishes a page per ISRC that lists the streaming links of a recording. The provider
// reads the YouTube link from that page.
package services

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultSongstatsURL = "https://songstats.com"
	youTubeWatchPrefix  = "https://www.youtube.com/watch?v="
)

var (
	anchorTag   = regexp.MustCompile(`(?is)<a\s[^>]*>`)
	hrefAttr    = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']+)["']`)
	ariaAttr    = regexp.MustCompile(`(?is)\baria-label\s*=\s*["']([^"']*)["']`)
	bareYouTube = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:youtube\.com|youtu\.be)/[^\s"'<>]+`)
)

// SongstatsService implements [LinkProvider] using the Songstats ISRC pages.
type SongstatsService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	resolver   ISRCResolver
}

// NewSongstatsService creates the provider. resolver may be nil; rows without an ISRC are then
// reported as not found.
func NewSongstatsService(cfg shared.SongstatsConfig, resolver ISRCResolver, client *http.Client) *SongstatsService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSongstatsURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SongstatsService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    limiterEvery(cfg.RequestInterval()),
		resolver:   resolver,
	}
}

func (s *SongstatsService) Name() string {
	return "songstats"
}

// Lookup fetches the Songstats page for the track's ISRC and returns the YouTube links on it,
// best first.
func (s *SongstatsService) Lookup(ctx context.Context, track models.Track) ([]Candidate, error) {
	isrc := strings.ToUpper(strings.TrimSpace(track.ISRC))
	if isrc == "" && s.resolver != nil {
		resolved, err := s.resolver.ResolveISRC(ctx, track.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve ISRC: %w", err)
		}
		isrc = strings.ToUpper(strings.TrimSpace(resolved))
	}
	if isrc == "" {
		return nil, fmt.Errorf("%w: no ISRC", shared.ErrTrackNotFound)
	}

	params := url.Values{"ref": {"ISRCFinder"}}
	body, err := get(ctx, s.httpClient, s.limiter, s.Name(), s.baseURL+"/"+url.PathEscape(isrc), params, nil)
	if err != nil {
		return nil, err
	}

	links := ExtractYouTubeLinks(string(body))
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no YouTube link on the page for %s", shared.ErrTrackNotFound, isrc)
	}

	candidates := make([]Candidate, 0, len(links))
	for _, l := range links {
		candidates = append(candidates, Candidate{Link: l, Note: "songstats " + isrc})
	}
	return candidates, nil
}

// ExtractYouTubeLinks returns the canonical YouTube video links found in a page, without
// duplicates. Channel and playlist links are ignored.
//
// Anchors labelled as YouTube come first, then other anchors pointing at YouTube, then URLs found
// in the page text.
func ExtractYouTubeLinks(page string) []string {
	var labelled, anchored []string
	for _, tag := range anchorTag.FindAllString(page, -1) {
		m := hrefAttr.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		href := strings.TrimSpace(html.UnescapeString(m[1]))
		if !shared.IsYouTubeURL(href) {
			continue
		}
		if aria := ariaAttr.FindStringSubmatch(tag); aria != nil && strings.Contains(strings.ToLower(aria[1]), "youtube") {
			labelled = append(labelled, href)
		} else {
			anchored = append(anchored, href)
		}
	}

	var text []string
	for _, m := range bareYouTube.FindAllString(page, -1) {
		text = append(text, html.UnescapeString(m))
	}

	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{labelled, anchored, text} {
		for _, l := range group {
			c := shared.CanonicalYouTubeURL(l)
			if !strings.HasPrefix(c, youTubeWatchPrefix) || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
