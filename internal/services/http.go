package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/llahellec/de-spotify/internal/shared"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds every response body read by a provider.
const maxBodyBytes = 8 << 20

// statusError maps an HTTP status onto the pipeline error taxonomy.
func statusError(service string, code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrAuthFailed, service, code)
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrTrackNotFound, service, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrTransient, service, code)
	default:
		return fmt.Errorf("%s API error: status %d", service, code)
	}
}

// get performs a rate-limited GET and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, limiter *rate.Limiter, service, rawURL string, params url.Values, header http.Header) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s request failed: %w", shared.ErrTransient, service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(service, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", shared.ErrTransient, service, err)
	}
	return body, nil
}

// limiterEvery allows one request per interval; a zero interval disables the limit.
func limiterEvery(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
