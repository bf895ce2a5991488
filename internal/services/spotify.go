// Spotify API implementation of [ISRCResolver]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/llahellec/de-spotify/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

// SpotifyService resolves track metadata with the client-credentials flow.
// No user login is involved; the [oauth2] client fetches and renews the app token.
type SpotifyService struct {
	config     *clientcredentials.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewSpotifyService creates a Spotify service with the given client credentials.
func NewSpotifyService(creds shared.SpotifyConfig) (*SpotifyService, error) {
	return newSpotifyService(creds, spotifyBaseURL, spotifyTokenURL)
}

func newSpotifyService(creds shared.SpotifyConfig, baseURL, tokenURL string) (*SpotifyService, error) {
	if strings.TrimSpace(creds.ClientID) == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if strings.TrimSpace(creds.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	config := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
	}

	return &SpotifyService{
		config:     config,
		httpClient: config.Client(context.Background()),
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated GET against the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	body, err := get(ctx, s.httpClient, s.limiter, "spotify", s.baseURL+endpoint, nil, nil)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && (retrieveErr.Response == nil || retrieveErr.Response.StatusCode < 500) {
			return fmt.Errorf("%w: spotify token request: %s", shared.ErrAuthFailed, retrieveErr.Error())
		}
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	if err := s.doRequest(ctx, "/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// ResolveISRC returns the ISRC of a track given its URI (spotify:track:ID) or open.spotify.com link.
func (s *SpotifyService) ResolveISRC(ctx context.Context, uri string) (string, error) {
	id := SpotifyTrackID(uri)
	if id == "" {
		return "", fmt.Errorf("%w: %q is not a Spotify track", shared.ErrTrackNotFound, uri)
	}

	track, err := s.Track(ctx, id)
	if err != nil {
		return "", err
	}
	if track.ExternalIDs.ISRC == "" {
		return "", fmt.Errorf("%w: spotify has no ISRC for %s", shared.ErrTrackNotFound, id)
	}
	return track.ExternalIDs.ISRC, nil
}

// SpotifyTrackID extracts the track ID from a track URI or link, or returns "".
func SpotifyTrackID(uri string) string {
	uri = strings.TrimSpace(uri)
	if id, ok := strings.CutPrefix(uri, "spotify:track:"); ok {
		return id
	}

	u, err := url.Parse(uri)
	if err != nil || !strings.HasSuffix(u.Host, "spotify.com") {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "track" {
			return parts[i+1]
		}
	}
	return ""
}
