package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/shared"
	tu "github.com/llahellec/de-spotify/internal/testing"
)

func testDownloadOptions(dir string) DownloadOptions {
	return DownloadOptions{
		OutputDir:        dir,
		AudioFormat:      "mp3",
		TolerancePercent: 15,
		SearchLimit:      5,
		MinDelay:         3 * time.Second,
		MaxDelay:         6 * time.Second,
		EmbedMetadata:    true,
		RetryAttempts:    2,
		RetryBackoff:     time.Second,
		CallTimeout:      time.Minute,
		FetchTimeout:     time.Minute,
		CheckpointEvery:  1,
	}
}

type downloadFixture struct {
	orchestrator *DownloadOrchestrator
	downloader   *tu.MockDownloader
	tagger       *tu.MockTagger
	saver        *tu.MemorySaver[models.DownloadRecord]
	clock        *tu.FakeClock
}

func newDownloadFixture(opts DownloadOptions, downloader *tu.MockDownloader) *downloadFixture {
	f := &downloadFixture{
		downloader: downloader,
		tagger:     &tu.MockTagger{},
		saver:      &tu.MemorySaver[models.DownloadRecord]{},
		clock:      tu.NewFakeClock(epoch),
	}
	f.orchestrator = NewDownloadOrchestrator(downloader, f.tagger, nil, f.saver, opts, nil)
	f.orchestrator.SetClock(f.clock)
	f.orchestrator.SetRand(rand.New(rand.NewPCG(3, 4)))
	return f
}

func downloadRow(uri, title string, durationMS int, link string) models.DownloadRecord {
	return models.NewDownloadRecord(models.MasterRecord{
		Track:      models.Track{URI: uri, Title: title, Artists: "Artist", Album: "Album", DurationMS: durationMS},
		Link:       link,
		Provenance: models.ProvenancePrimary,
	})
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, what)
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		expected  int
		candidate int
		percent   float64
		floor     time.Duration
		want      bool
	}{
		{"exact", 300000, 300000, 15, 0, true},
		{"upper edge", 300000, 345000, 15, 0, true},
		{"one past upper edge", 300000, 345001, 15, 0, false},
		{"lower edge", 300000, 255000, 15, 0, true},
		{"one past lower edge", 300000, 254999, 15, 0, false},
		{"five percent", 200000, 210000, 15, 0, true},
		{"floor widens short tracks", 100000, 125000, 15, 30 * time.Second, true},
		{"floor has a limit", 100000, 130001, 15, 30 * time.Second, false},
		{"unknown expected", 0, 999999, 15, 0, true},
		{"unknown candidate", 300000, 0, 15, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinTolerance(tt.expected, tt.candidate, tt.percent, tt.floor); got != tt.want {
				t.Errorf("WithinTolerance(%d, %d, %v, %v) = %v, want %v",
					tt.expected, tt.candidate, tt.percent, tt.floor, got, tt.want)
			}
		})
	}
}

func TestDefaultTolerance(t *testing.T) {
	cfg := shared.DefaultConfig()
	opts := NewDownloadOptions(cfg.Pipeline, cfg.Download, t.TempDir())

	if opts.ToleranceFloor != 0 {
		t.Errorf("default floor = %v, want none", opts.ToleranceFloor)
	}

	tests := []struct {
		expected, candidate int
		want                bool
	}{
		{300000, 345000, true},
		{300000, 345001, false},
		{120000, 138000, true},
		{120000, 145000, false},
	}
	for _, tt := range tests {
		got := WithinTolerance(tt.expected, tt.candidate, opts.TolerancePercent, opts.ToleranceFloor)
		if got != tt.want {
			t.Errorf("default WithinTolerance(%d, %d) = %v, want %v", tt.expected, tt.candidate, got, tt.want)
		}
	}
}

// id:1 is not found by provider A, found by provider B, and finally downloaded from a search result
// 5% longer than expected.
func TestPipelineExample(t *testing.T) {
	track := models.Track{URI: "id:1", Title: "X", Artists: "Y", DurationMS: 200000, ISRC: "US1"}

	master, _ := Reconcile(
		[]models.LookupRow{{Track: track, Lookup: models.LookupResult{Status: models.LookupNotFound}}},
		[]models.LookupRow{{Track: track, Lookup: models.LookupResult{Status: models.LookupFound, Link: "L"}}},
	)
	if master[0].Link != "L" || master[0].Provenance != models.ProvenanceFallback {
		t.Fatalf("expected fallback link L, got %+v", master[0])
	}

	dir := t.TempDir()
	downloader := &tu.MockDownloader{
		ProbeErrors: map[string]error{"L": notFound("video unavailable")},
		Results: map[string][]services.Media{
			"Y X": {{ID: "cand", URL: "https://www.youtube.com/watch?v=candidate01", DurationMS: 210000}},
		},
	}
	f := newDownloadFixture(testDownloadOptions(dir), downloader)

	rows := []models.DownloadRecord{models.NewDownloadRecord(master[0])}
	report, err := f.orchestrator.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec := rows[0]
	if rec.Status != models.DownloadSuccess {
		t.Fatalf("status = %q (%s), want success", rec.Status, rec.DownloadNote)
	}
	if rec.SearchedLink != "https://www.youtube.com/watch?v=candidate01" || rec.ActualDurationMS != 210000 {
		t.Errorf("unexpected match %q %d", rec.SearchedLink, rec.ActualDurationMS)
	}
	wantPath := filepath.Join(dir, "Y", "Unknown Album", "X.mp3")
	if rec.FilePath != wantPath {
		t.Errorf("FilePath = %q, want %q", rec.FilePath, wantPath)
	}
	if !rec.MetadataEmbedded || len(f.tagger.Tagged) != 1 {
		t.Error("expected metadata to be embedded once")
	}
	if rec.Attempts != 1 || report.Succeeded != 1 || report.Remaining != 0 {
		t.Errorf("unexpected record/report: attempts %d, %+v", rec.Attempts, report)
	}
}

func TestDownloadOrchestrator_ToleranceBoundary(t *testing.T) {
	downloader := &tu.MockDownloader{
		Results: map[string][]services.Media{
			"Artist Song": {
				{URL: "https://www.youtube.com/watch?v=toolong0001", DurationMS: 345001},
				{URL: "https://www.youtube.com/watch?v=attheedge01", DurationMS: 345000},
				{URL: "https://www.youtube.com/watch?v=exactmatch1", DurationMS: 300000},
			},
		},
	}
	f := newDownloadFixture(testDownloadOptions(t.TempDir()), downloader)

	rows := []models.DownloadRecord{downloadRow("id:1", "Song", 300000, "")}
	if _, err := f.orchestrator.Run(context.Background(), rows, nil); err != nil {
		t.Fatal(err)
	}

	if rows[0].SearchedLink != "https://www.youtube.com/watch?v=attheedge01" {
		t.Errorf("expected the first candidate within tolerance in search order, got %q", rows[0].SearchedLink)
	}
	if downloader.FetchCount("https://www.youtube.com/watch?v=toolong0001") != 0 {
		t.Error("candidate outside tolerance must not be fetched")
	}
}

func TestDownloadOrchestrator_Outcomes(t *testing.T) {
	direct := "https://www.youtube.com/watch?v=directlink1"
	alt := "https://www.youtube.com/watch?v=alternate01"

	tests := []struct {
		name       string
		row        func() models.DownloadRecord
		downloader *tu.MockDownloader
		status     models.DownloadStatus
		fetched    string
		searched   bool
	}{
		{
			name: "direct link",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media: map[string]services.Media{direct: {URL: direct, DurationMS: 201000}},
			},
			status:  models.DownloadSuccess,
			fetched: direct,
		},
		{
			name: "direct link with unknown duration",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media: map[string]services.Media{direct: {URL: direct}},
			},
			status:  models.DownloadSuccess,
			fetched: direct,
		},
		{
			name: "alternate link after the resolved link fails",
			row: func() models.DownloadRecord {
				r := downloadRow("id:1", "Song", 200000, direct)
				r.AltLink = alt
				return r
			},
			downloader: &tu.MockDownloader{
				ProbeErrors: map[string]error{direct: notFound("private video")},
				Media:       map[string]services.Media{alt: {URL: alt, DurationMS: 199000}},
			},
			status:  models.DownloadSuccess,
			fetched: alt,
		},
		{
			name: "direct link duration mismatch falls back to search",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media: map[string]services.Media{direct: {URL: direct, DurationMS: 600000}},
				Results: map[string][]services.Media{
					"Artist Song": {{URL: "https://www.youtube.com/watch?v=searchhit01", DurationMS: 200500}},
				},
			},
			status:   models.DownloadSuccess,
			fetched:  "https://www.youtube.com/watch?v=searchhit01",
			searched: true,
		},
		{
			name: "unavailable stream falls back to search",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media:       map[string]services.Media{direct: {URL: direct, DurationMS: 200000}},
				FetchErrors: map[string][]error{direct: {notFound("blocked on copyright grounds")}},
				Results: map[string][]services.Media{
					"Artist Song": {{URL: "https://www.youtube.com/watch?v=searchhit01", DurationMS: 200000}},
				},
			},
			status:   models.DownloadSuccess,
			fetched:  "https://www.youtube.com/watch?v=searchhit01",
			searched: true,
		},
		{
			name: "no candidate within tolerance",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, "") },
			downloader: &tu.MockDownloader{
				Results: map[string][]services.Media{
					"Artist Song": {{URL: "https://www.youtube.com/watch?v=wrongsong01", DurationMS: 400000}},
				},
			},
			status:   models.DownloadFailedNoMatch,
			searched: true,
		},
		{
			name:       "no search results",
			row:        func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, "") },
			downloader: &tu.MockDownloader{},
			status:     models.DownloadFailedNoMatch,
			searched:   true,
		},
		{
			name: "network failure after retries",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media:       map[string]services.Media{direct: {URL: direct, DurationMS: 200000}},
				FetchErrors: map[string][]error{direct: {shared.ErrTransient, shared.ErrTransient}},
			},
			status: models.DownloadFailedError,
		},
		{
			name: "transient failure recovers on retry",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				Media:       map[string]services.Media{direct: {URL: direct, DurationMS: 200000}},
				FetchErrors: map[string][]error{direct: {shared.ErrTransient}},
			},
			status:  models.DownloadSuccess,
			fetched: direct,
		},
		{
			name: "unreachable direct link stays retryable",
			row: func() models.DownloadRecord {
				r := downloadRow("id:1", "Song", 200000, direct)
				r.AltLink = alt
				return r
			},
			downloader: &tu.MockDownloader{
				ProbeErrors: map[string]error{direct: fmt.Errorf("%w: connection reset", shared.ErrTransient)},
				Media:       map[string]services.Media{alt: {URL: alt, DurationMS: 200000}},
			},
			status: models.DownloadFailedError,
		},
		{
			name: "direct link timeout",
			row:  func() models.DownloadRecord { return downloadRow("id:1", "Song", 200000, direct) },
			downloader: &tu.MockDownloader{
				ProbeErrors: map[string]error{direct: shared.ErrTimeout},
			},
			status: models.DownloadFailedError,
		},
		{
			name:       "row without link or title",
			row:        func() models.DownloadRecord { return downloadRow("id:1", "", 200000, "") },
			downloader: &tu.MockDownloader{},
			status:     models.DownloadFailedError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDownloadFixture(testDownloadOptions(t.TempDir()), tt.downloader)
			rows := []models.DownloadRecord{tt.row()}
			if _, err := f.orchestrator.Run(context.Background(), rows, nil); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			rec := rows[0]
			if rec.Status != tt.status {
				t.Fatalf("status = %q (%s), want %q", rec.Status, rec.DownloadNote, tt.status)
			}
			if tt.fetched != "" && tt.downloader.FetchCount(tt.fetched) == 0 {
				t.Errorf("expected %s to be fetched, got %v", tt.fetched, tt.downloader.Fetches)
			}
			if searched := len(tt.downloader.Searches) > 0; searched != tt.searched {
				t.Errorf("searched = %v, want %v", searched, tt.searched)
			}
			if rec.Status.IsDone() && rec.DownloadNote != "" {
				t.Errorf("successful row should carry no failure note, got %q", rec.DownloadNote)
			}
			if !rec.Status.IsDone() && rec.DownloadNote == "" {
				t.Error("failed row should record why it failed")
			}
			if rec.Status == models.DownloadFailedError && !rec.Status.NeedsWork(true) {
				t.Error("failed_error rows should reopen with retry-failed")
			}
			if rec.Status.IsDone() && !tt.searched && rec.SearchedLink != "" {
				t.Errorf("direct downloads should not set a searched link, got %q", rec.SearchedLink)
			}
		})
	}
}

func TestDownloadOrchestrator_SkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Artist", "Album", "Song.mp3")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	downloader := &tu.MockDownloader{}
	f := newDownloadFixture(testDownloadOptions(dir), downloader)

	rows := []models.DownloadRecord{
		downloadRow("id:1", "Song", 200000, "https://www.youtube.com/watch?v=directlink1"),
		downloadRow("id:2", "Song", 200000, "https://www.youtube.com/watch?v=directlink1"),
	}
	rows[1].Artists = "Other"
	downloader.Media = map[string]services.Media{"https://www.youtube.com/watch?v=directlink1": {DurationMS: 200000}}

	if _, err := f.orchestrator.Run(context.Background(), rows, nil); err != nil {
		t.Fatal(err)
	}

	if rows[0].Status != models.DownloadSkippedExisting || rows[0].FilePath != target {
		t.Errorf("expected skipped_existing at %s, got %q %q", target, rows[0].Status, rows[0].FilePath)
	}
	if !rows[0].MetadataEmbedded {
		t.Error("metadata should still be embedded into an existing file")
	}
	if len(downloader.Probes) != 1 {
		t.Errorf("only the second row should reach the network, got probes %v", downloader.Probes)
	}
	if len(f.clock.Slept()) != 0 {
		t.Errorf("a skipped row needs no rate-limit delay, got %v", f.clock.Slept())
	}
}

func TestDownloadOrchestrator_SkipsTerminalRows(t *testing.T) {
	link := "https://www.youtube.com/watch?v=directlink1"
	rows := []models.DownloadRecord{
		downloadRow("id:1", "Song 1", 200000, link),
		downloadRow("id:2", "Song 2", 200000, link),
		downloadRow("id:3", "Song 3", 200000, link),
	}
	rows[0].Status = models.DownloadSuccess
	rows[1].Status = models.DownloadFailedNoMatch
	rows[2].Status = models.DownloadFailedError

	t.Run("failed rows stay closed", func(t *testing.T) {
		downloader := &tu.MockDownloader{Media: map[string]services.Media{link: {DurationMS: 200000}}}
		f := newDownloadFixture(testDownloadOptions(t.TempDir()), downloader)
		work := append([]models.DownloadRecord(nil), rows...)
		report, err := f.orchestrator.Run(context.Background(), work, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(downloader.Probes) != 0 || report.Processed != 0 {
			t.Errorf("terminal rows were processed: %v", downloader.Probes)
		}
	})

	t.Run("retry failed re-opens failed_error only", func(t *testing.T) {
		downloader := &tu.MockDownloader{Media: map[string]services.Media{link: {DurationMS: 200000}}}
		opts := testDownloadOptions(t.TempDir())
		opts.RetryFailed = true
		f := newDownloadFixture(opts, downloader)
		work := append([]models.DownloadRecord(nil), rows...)
		report, err := f.orchestrator.Run(context.Background(), work, nil)
		if err != nil {
			t.Fatal(err)
		}
		if report.Processed != 1 || work[2].Status != models.DownloadSuccess {
			t.Errorf("expected only id:3 to be retried, got %+v", report)
		}
		if work[1].Status != models.DownloadFailedNoMatch {
			t.Errorf("no-match rows stay terminal, got %q", work[1].Status)
		}
	})
}

func TestDownloadOrchestrator_CrashSafety(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "downloads.csv")
	links := []string{
		"https://www.youtube.com/watch?v=firstsong01",
		"https://www.youtube.com/watch?v=secondsong1",
		"https://www.youtube.com/watch?v=thirdsong01",
	}
	rows := []models.DownloadRecord{
		downloadRow("id:1", "One", 200000, links[0]),
		downloadRow("id:2", "Two", 200000, links[1]),
		downloadRow("id:3", "Three", 200000, links[2]),
	}
	store := checkpoint.NewDownloads(path, checkpoint.Layout{})
	if err := store.Save(rows); err != nil {
		t.Fatal(err)
	}

	media := map[string]services.Media{}
	for _, l := range links {
		media[l] = services.Media{URL: l, DurationMS: 200000}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := &tu.MockDownloader{
		Media: media,
		OnFetch: func(_ context.Context, url string) {
			if url == links[1] {
				cancel()
			}
		},
	}

	first := NewDownloadOrchestrator(interrupted, nil, nil, store, testDownloadOptions(dir), nil)
	first.SetClock(tu.NewFakeClock(epoch))
	report, err := first.Run(ctx, rows, nil)
	if err != nil {
		t.Fatalf("interrupted Run() error = %v", err)
	}
	if report.StopReason != models.StopCancelled {
		t.Fatalf("StopReason = %q, want cancelled", report.StopReason)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), string(models.DownloadInProgress)) {
		t.Fatalf("in-progress state was persisted:\n%s", data)
	}

	_, resumed, err := checkpoint.OpenDownloads(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if resumed[0].Status != models.DownloadSuccess {
		t.Errorf("completed row should be persisted as success, got %q", resumed[0].Status)
	}
	if resumed[1].Status != models.DownloadPending {
		t.Fatalf("interrupted row should be pending on restart, got %q", resumed[1].Status)
	}

	again := &tu.MockDownloader{Media: media}
	second := NewDownloadOrchestrator(again, nil, nil, store, testDownloadOptions(dir), nil)
	second.SetClock(tu.NewFakeClock(epoch))
	if _, err := second.Run(context.Background(), resumed, nil); err != nil {
		t.Fatal(err)
	}

	if again.FetchCount(links[0]) != 0 {
		t.Error("completed row was downloaded again")
	}
	if again.FetchCount(links[1]) != 1 {
		t.Errorf("interrupted row should be reprocessed exactly once, got %d", again.FetchCount(links[1]))
	}
	for i, r := range resumed {
		if r.Status != models.DownloadSuccess {
			t.Errorf("row %d: status = %q, want success", i, r.Status)
		}
	}
}

func TestDownloadOrchestrator_RuntimeCeiling(t *testing.T) {
	opts := testDownloadOptions(t.TempDir())
	opts.MinDelay = 5 * time.Second
	opts.MaxDelay = 5 * time.Second
	opts.MaxRuntime = 12 * time.Second

	var rows []models.DownloadRecord
	media := map[string]services.Media{}
	for i := 1; i <= 5; i++ {
		link := fmt.Sprintf("https://www.youtube.com/watch?v=song%07d", i)
		rows = append(rows, downloadRow(fmt.Sprintf("id:%d", i), fmt.Sprintf("Song %d", i), 200000, link))
		media[link] = services.Media{URL: link, DurationMS: 200000}
	}

	downloader := &tu.MockDownloader{Media: media}
	f := newDownloadFixture(opts, downloader)
	downloader.OnFetch = func(context.Context, string) { f.clock.Advance(3 * time.Second) }

	report, err := f.orchestrator.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatal(err)
	}

	if report.StopReason != models.StopRuntimeLimit {
		t.Errorf("StopReason = %q, want runtime_limit", report.StopReason)
	}
	if report.Processed != 3 || report.Remaining != 2 || !report.Incomplete() {
		t.Errorf("expected 3 processed and 2 remaining, got %+v", report)
	}
	rowDuration := opts.MaxDelay + 3*time.Second
	if elapsed := f.clock.Now().Sub(epoch); elapsed > opts.MaxRuntime+rowDuration {
		t.Errorf("ran %v, more than one row past the %v ceiling", elapsed, opts.MaxRuntime)
	}
	for _, r := range rows[3:] {
		if r.Status != models.DownloadPending {
			t.Errorf("%s should stay pending, got %q", r.URI, r.Status)
		}
	}
	if f.saver.Last == nil {
		t.Error("progress should be saved when the ceiling stops the run")
	}
}

func TestDownloadOrchestrator_HaltFinishesCurrentRow(t *testing.T) {
	var rows []models.DownloadRecord
	media := map[string]services.Media{}
	for i := 1; i <= 3; i++ {
		link := fmt.Sprintf("https://www.youtube.com/watch?v=halt%07d", i)
		rows = append(rows, downloadRow(fmt.Sprintf("id:%d", i), fmt.Sprintf("Song %d", i), 200000, link))
		media[link] = services.Media{URL: link, DurationMS: 200000}
	}

	halt := new(Halt)
	downloader := &tu.MockDownloader{Media: media}
	downloader.OnFetch = func(_ context.Context, url string) {
		if url == rows[0].Link {
			halt.Request()
		}
	}
	f := newDownloadFixture(testDownloadOptions(t.TempDir()), downloader)
	f.orchestrator.SetHalt(halt)

	report, err := f.orchestrator.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("a halt is not an error, got %v", err)
	}
	if report.StopReason != models.StopCancelled || report.Processed != 1 {
		t.Errorf("expected a cancelled run with 1 row processed, got %+v", report)
	}
	if rows[0].Status != models.DownloadSuccess {
		t.Errorf("row in flight should be completed, got %q", rows[0].Status)
	}
	for _, r := range rows[1:] {
		if r.Status != models.DownloadPending {
			t.Errorf("%s should stay pending, got %q", r.URI, r.Status)
		}
	}
	if f.saver.Last == nil || f.saver.Last[0].Status != models.DownloadSuccess {
		t.Error("the completed row should be saved")
	}
}

func TestDownloadOrchestrator_Pauses(t *testing.T) {
	t.Run("long pause every n downloads", func(t *testing.T) {
		opts := testDownloadOptions(t.TempDir())
		opts.LongPauseEvery = 2
		opts.LongPauseMin = time.Minute
		opts.LongPauseMax = time.Minute

		link := "https://www.youtube.com/watch?v=directlink1"
		downloader := &tu.MockDownloader{Media: map[string]services.Media{link: {DurationMS: 200000}}}
		f := newDownloadFixture(opts, downloader)

		rows := []models.DownloadRecord{
			downloadRow("id:1", "One", 200000, link),
			downloadRow("id:2", "Two", 200000, link),
			downloadRow("id:3", "Three", 200000, link),
		}
		if _, err := f.orchestrator.Run(context.Background(), rows, nil); err != nil {
			t.Fatal(err)
		}

		pauses := 0
		for _, d := range f.clock.Slept() {
			if d == time.Minute {
				pauses++
			}
		}
		if pauses != 1 {
			t.Errorf("expected one long pause after the second download, got sleeps %v", f.clock.Slept())
		}
	})

	t.Run("cool-down after consecutive transient failures", func(t *testing.T) {
		opts := testDownloadOptions(t.TempDir())
		opts.RetryAttempts = 1
		opts.CooldownAfter = 2
		opts.Cooldown = 15 * time.Minute

		downloader := &tu.MockDownloader{SearchErr: fmt.Errorf("%w: connection reset", shared.ErrTransient)}
		f := newDownloadFixture(opts, downloader)

		rows := []models.DownloadRecord{
			downloadRow("id:1", "One", 200000, ""),
			downloadRow("id:2", "Two", 200000, ""),
			downloadRow("id:3", "Three", 200000, ""),
		}
		if _, err := f.orchestrator.Run(context.Background(), rows, nil); err != nil {
			t.Fatal(err)
		}

		cooldowns := 0
		for _, d := range f.clock.Slept() {
			if d == 15*time.Minute {
				cooldowns++
			}
		}
		if cooldowns != 1 {
			t.Errorf("expected one cool-down, got sleeps %v", f.clock.Slept())
		}
		for _, r := range rows {
			if r.Status != models.DownloadFailedError {
				t.Errorf("%s: status = %q, want failed_error", r.URI, r.Status)
			}
		}
	})
}
