package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/shared"
)

// MockProvider is a test double for [services.LinkProvider]. Responses are keyed by track URI.
type MockProvider struct {
	mu sync.Mutex

	ProviderName string
	Links        map[string]string  // Found links
	Errors       map[string][]error // Returned in order before falling back to Links
	OnLookup     func(ctx context.Context, track models.Track)
	calls        []string
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Lookup(ctx context.Context, track models.Track) ([]services.Candidate, error) {
	m.mu.Lock()
	m.calls = append(m.calls, track.URI)
	var err error
	if errs := m.Errors[track.URI]; len(errs) > 0 {
		err = errs[0]
		m.Errors[track.URI] = errs[1:]
	}
	link, found := m.Links[track.URI]
	hook := m.OnLookup
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, track)
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !found {
		return nil, nil
	}
	return []services.Candidate{{Link: link, Note: "mock"}}, nil
}

// Calls returns the URIs looked up, in order.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how often uri was looked up.
func (m *MockProvider) CallCount(uri string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == uri {
			n++
		}
	}
	return n
}

// MockDownloader is a test double for [services.Downloader].
//
// Probe answers from Media (unknown URLs are not found), Search from Results keyed by query. Fetch writes an empty file at
// base + "." + Format unless FetchErrors holds an error for the URL.
type MockDownloader struct {
	mu sync.Mutex

	Format      string
	Media       map[string]services.Media
	ProbeErrors map[string]error
	Results     map[string][]services.Media
	SearchErr   error
	FetchErrors map[string][]error
	OnFetch     func(ctx context.Context, url string)

	Probes   []string
	Searches []string
	Fetches  []string
}

func (m *MockDownloader) Probe(ctx context.Context, url string) (*services.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Probes = append(m.Probes, url)
	if err := m.ProbeErrors[url]; err != nil {
		return nil, err
	}
	media, ok := m.Media[url]
	if !ok {
		return nil, fmt.Errorf("%w: mock has no media for %s", shared.ErrTrackNotFound, url)
	}
	return &media, nil
}

func (m *MockDownloader) Search(ctx context.Context, query string, limit int) ([]services.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Searches = append(m.Searches, query)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	results := m.Results[query]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockDownloader) Fetch(ctx context.Context, url, base string) (string, error) {
	m.mu.Lock()
	m.Fetches = append(m.Fetches, url)
	var err error
	if errs := m.FetchErrors[url]; len(errs) > 0 {
		err = errs[0]
		m.FetchErrors[url] = errs[1:]
	}
	hook := m.OnFetch
	format := m.Format
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, url)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}

	if format == "" {
		format = "mp3"
	}
	path := base + "." + format
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte("audio:"+url), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FetchCount returns how often url was fetched.
func (m *MockDownloader) FetchCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.Fetches {
		if f == url {
			n++
		}
	}
	return n
}

// MockTagger is a test double for [services.Tagger].
type MockTagger struct {
	mu     sync.Mutex
	Err    error
	Tagged []string
}

func (m *MockTagger) Tag(ctx context.Context, path string, track models.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Tagged = append(m.Tagged, path)
	return nil
}

// FakeClock is a manual clock. Sleep advances time instead of blocking.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns every duration passed to Sleep.
func (c *FakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// MemorySaver records saved row sets instead of writing a file.
type MemorySaver[T any] struct {
	Err   error
	Saves int
	Last  []T
}

func (s *MemorySaver[T]) Save(rows []T) error {
	if s.Err != nil {
		return s.Err
	}
	s.Saves++
	s.Last = append([]T(nil), rows...)
	return nil
}

func (s *MemorySaver[T]) Path() string { return "memory" }
