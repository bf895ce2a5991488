package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
	tu "github.com/llahellec/de-spotify/internal/testing"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLookupOptions() LookupOptions {
	return LookupOptions{
		Stage:           models.StageSongstats,
		MinDelay:        3 * time.Second,
		MaxDelay:        4 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    2 * time.Second,
		CallTimeout:     time.Minute,
		CheckpointEvery: 1,
	}
}

func newTestLookupRunner(p *tu.MockProvider, saver Saver[models.LookupRow], opts LookupOptions) (*LookupRunner, *tu.FakeClock) {
	clock := tu.NewFakeClock(epoch)
	r := NewLookupRunner(p, saver, opts, nil)
	r.SetClock(clock)
	r.SetRand(rand.New(rand.NewPCG(1, 2)))
	return r, clock
}

func lookupRows(uris ...string) []models.LookupRow {
	rows := make([]models.LookupRow, len(uris))
	for i, uri := range uris {
		rows[i] = models.LookupRow{
			Track:  models.Track{URI: uri, Title: "Song " + uri, Artists: "Artist"},
			Lookup: models.LookupResult{Status: models.LookupNotAttempted},
		}
	}
	return rows
}

func TestLookupRunner_Run(t *testing.T) {
	provider := &tu.MockProvider{
		Links: map[string]string{"id:1": "https://youtu.be/abcdefghijk"},
		Errors: map[string][]error{
			"id:3": {shared.ErrTransient, shared.ErrTransient, shared.ErrTransient},
		},
	}
	saver := &tu.MemorySaver[models.LookupRow]{}
	runner, clock := newTestLookupRunner(provider, saver, testLookupOptions())

	rows := lookupRows("id:1", "id:2", "id:3")
	report, err := runner.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	tests := []struct {
		uri    string
		status models.LookupStatus
		link   string
	}{
		{"id:1", models.LookupFound, "https://www.youtube.com/watch?v=abcdefghijk"},
		{"id:2", models.LookupNotFound, ""},
		{"id:3", models.LookupError, ""},
	}
	for i, tt := range tests {
		if rows[i].Lookup.Status != tt.status {
			t.Errorf("%s: status = %q, want %q", tt.uri, rows[i].Lookup.Status, tt.status)
		}
		if rows[i].Lookup.Link != tt.link {
			t.Errorf("%s: link = %q, want %q", tt.uri, rows[i].Lookup.Link, tt.link)
		}
		if rows[i].Lookup.At.IsZero() {
			t.Errorf("%s: expected attempt timestamp", tt.uri)
		}
	}

	if got := provider.CallCount("id:3"); got != 3 {
		t.Errorf("expected 3 attempts for transient failures, got %d", got)
	}
	if report.StopReason != models.StopCompleted {
		t.Errorf("StopReason = %q, want completed", report.StopReason)
	}
	if report.Processed != 3 || report.Succeeded != 1 || report.Failed != 2 || report.Remaining != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if saver.Saves != 4 {
		t.Errorf("expected a save per row plus one on exit, got %d", saver.Saves)
	}

	var delays, backoffs int
	for _, d := range clock.Slept() {
		switch {
		case d >= 3*time.Second && d <= 4*time.Second:
			delays++
		case d == 2*time.Second || d == 4*time.Second:
			backoffs++
		default:
			t.Errorf("unexpected sleep %v", d)
		}
	}
	if delays < 2 || backoffs < 1 {
		t.Errorf("expected inter-row delays before rows 2 and 3 plus backoff, got %v", clock.Slept())
	}
	if len(clock.Slept()) != 4 {
		t.Errorf("expected 2 delays and 2 backoffs, got %v", clock.Slept())
	}
}

func TestLookupRunner_DelayFollowsFailures(t *testing.T) {
	provider := &tu.MockProvider{
		Errors: map[string][]error{"id:1": {fmt.Errorf("%w: page layout changed", shared.ErrInvalidInput)}},
	}
	runner, clock := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, testLookupOptions())

	rows := lookupRows("id:1", "id:2")
	if _, err := runner.Run(context.Background(), rows, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rows[0].Lookup.Status != models.LookupError {
		t.Errorf("expected error status, got %q", rows[0].Lookup.Status)
	}
	slept := clock.Slept()
	if len(slept) != 1 || slept[0] < 3*time.Second || slept[0] > 4*time.Second {
		t.Errorf("expected one delay in [3s, 4s] after the failed row, got %v", slept)
	}
}

func TestLookupRunner_IdempotentResume(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "liked.csv")
	output := filepath.Join(dir, "songstats.csv")
	content := "Track URI,Track Name,Artist Name(s),ISRC,Popularity\n" +
		"spotify:track:1,One,A,US1,10\n" +
		"spotify:track:2,Two,B,US2,20\n" +
		"spotify:track:3,Three,C,,30\n"
	if err := os.WriteFile(input, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	first := &tu.MockProvider{Links: map[string]string{"spotify:track:1": "https://www.youtube.com/watch?v=aaaaaaaaaaa"}}
	store, rows, err := checkpoint.OpenLookup(output, input)
	if err != nil {
		t.Fatalf("OpenLookup() error = %v", err)
	}
	runner, _ := newTestLookupRunner(first, store, testLookupOptions())
	if _, err := runner.Run(context.Background(), rows, nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	afterFirst, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}

	second := &tu.MockProvider{Links: map[string]string{"spotify:track:2": "https://www.youtube.com/watch?v=bbbbbbbbbbb"}}
	store, rows, err = checkpoint.OpenLookup(output, input)
	if err != nil {
		t.Fatalf("OpenLookup() on resume error = %v", err)
	}
	runner, _ = newTestLookupRunner(second, store, testLookupOptions())
	report, err := runner.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	afterSecond, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}

	if calls := second.Calls(); len(calls) != 0 {
		t.Errorf("resume re-processed rows: %v", calls)
	}
	if report.Processed != 0 {
		t.Errorf("expected no processed rows on resume, got %d", report.Processed)
	}
	if string(afterFirst) != string(afterSecond) {
		t.Errorf("checkpoint changed on resume:\n%s\n---\n%s", afterFirst, afterSecond)
	}
	if !strings.Contains(string(afterFirst), "Popularity") {
		t.Error("unknown input columns should be preserved")
	}
}

func TestLookupRunner_ForceRetry(t *testing.T) {
	rows := lookupRows("id:1", "id:2", "id:3")
	rows[0].Lookup = models.LookupResult{Status: models.LookupFound, Link: "https://www.youtube.com/watch?v=keepkeepkee"}
	rows[1].Lookup = models.LookupResult{Status: models.LookupNotFound}
	rows[2].Lookup = models.LookupResult{Status: models.LookupError, Note: "timeout"}

	t.Run("without force", func(t *testing.T) {
		provider := &tu.MockProvider{}
		runner, _ := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, testLookupOptions())
		work := append([]models.LookupRow(nil), rows...)
		if _, err := runner.Run(context.Background(), work, nil); err != nil {
			t.Fatal(err)
		}
		if len(provider.Calls()) != 0 {
			t.Errorf("terminal rows were looked up: %v", provider.Calls())
		}
	})

	t.Run("with force", func(t *testing.T) {
		provider := &tu.MockProvider{Links: map[string]string{
			"id:1": "https://www.youtube.com/watch?v=otherothero",
			"id:3": "https://www.youtube.com/watch?v=ccccccccccc",
		}}
		opts := testLookupOptions()
		opts.ForceRetry = true
		runner, _ := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, opts)
		work := append([]models.LookupRow(nil), rows...)
		if _, err := runner.Run(context.Background(), work, nil); err != nil {
			t.Fatal(err)
		}
		if got := provider.Calls(); len(got) != 2 || got[0] != "id:2" || got[1] != "id:3" {
			t.Errorf("expected id:2 and id:3 to be retried, got %v", got)
		}
		if work[0].Lookup.Link != "https://www.youtube.com/watch?v=keepkeepkee" {
			t.Errorf("found row was changed: %+v", work[0].Lookup)
		}
		if work[2].Lookup.Status != models.LookupFound {
			t.Errorf("expected id:3 found, got %q", work[2].Lookup.Status)
		}
	})
}

func TestLookupRunner_AuthFailureAborts(t *testing.T) {
	provider := &tu.MockProvider{
		Links:  map[string]string{"id:1": "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		Errors: map[string][]error{"id:2": {fmt.Errorf("%w: 401 Unauthorized", shared.ErrAuthFailed)}},
	}
	saver := &tu.MemorySaver[models.LookupRow]{}
	runner, _ := newTestLookupRunner(provider, saver, testLookupOptions())

	rows := lookupRows("id:1", "id:2", "id:3")
	report, err := runner.Run(context.Background(), rows, nil)
	if !errors.Is(err, shared.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if report.StopReason != models.StopAuth {
		t.Errorf("StopReason = %q, want auth_failed", report.StopReason)
	}
	if provider.CallCount("id:2") != 1 {
		t.Error("auth failures must not be retried")
	}
	if provider.CallCount("id:3") != 0 {
		t.Error("run should stop at the auth failure")
	}
	if saver.Last[0].Lookup.Status != models.LookupFound {
		t.Error("progress before the failure should be saved")
	}
	if saver.Last[1].Lookup.Status != models.LookupNotAttempted {
		t.Errorf("row hit by the auth failure should stay not_attempted, got %q", saver.Last[1].Lookup.Status)
	}
	if report.Remaining != 2 {
		t.Errorf("expected 2 remaining rows, got %d", report.Remaining)
	}
}

func TestLookupRunner_RuntimeCeiling(t *testing.T) {
	opts := testLookupOptions()
	opts.MinDelay = 4 * time.Second
	opts.MaxDelay = 4 * time.Second
	opts.MaxRuntime = 10 * time.Second

	provider := &tu.MockProvider{}
	runner, clock := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, opts)

	rows := lookupRows("id:1", "id:2", "id:3", "id:4", "id:5")
	report, err := runner.Run(context.Background(), rows, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.StopReason != models.StopRuntimeLimit {
		t.Errorf("StopReason = %q, want runtime_limit", report.StopReason)
	}
	if report.Processed != 4 || report.Remaining != 1 {
		t.Errorf("expected 4 processed and 1 remaining, got %+v", report)
	}
	if elapsed := clock.Now().Sub(epoch); elapsed > opts.MaxRuntime+opts.MaxDelay {
		t.Errorf("ran %v, more than one row past the %v ceiling", elapsed, opts.MaxRuntime)
	}
	if rows[4].Lookup.Status != models.LookupNotAttempted {
		t.Errorf("row after the ceiling should be untouched, got %q", rows[4].Lookup.Status)
	}
}

func TestLookupRunner_MaxRows(t *testing.T) {
	opts := testLookupOptions()
	opts.MaxRows = 2
	provider := &tu.MockProvider{}
	runner, _ := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, opts)

	report, err := runner.Run(context.Background(), lookupRows("id:1", "id:2", "id:3"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.StopReason != models.StopMaxRows || report.Processed != 2 || !report.Incomplete() {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestLookupRunner_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &tu.MockProvider{
		Links: map[string]string{"id:1": "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		OnLookup: func(_ context.Context, track models.Track) {
			if track.URI == "id:2" {
				cancel()
			}
		},
	}
	saver := &tu.MemorySaver[models.LookupRow]{}
	runner, _ := newTestLookupRunner(provider, saver, testLookupOptions())

	report, err := runner.Run(ctx, lookupRows("id:1", "id:2", "id:3"), nil)
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if report.StopReason != models.StopCancelled {
		t.Errorf("StopReason = %q, want cancelled", report.StopReason)
	}
	if saver.Last[1].Lookup.Status != models.LookupNotAttempted {
		t.Errorf("interrupted row should stay not_attempted, got %q", saver.Last[1].Lookup.Status)
	}
	if provider.CallCount("id:3") != 0 {
		t.Error("no row should start after cancellation")
	}
}

func TestLookupRunner_HaltFinishesCurrentRow(t *testing.T) {
	halt := new(Halt)
	provider := &tu.MockProvider{
		Links: map[string]string{"id:2": "https://www.youtube.com/watch?v=bbbbbbbbbbb"},
		OnLookup: func(_ context.Context, track models.Track) {
			if track.URI == "id:2" {
				halt.Request()
			}
		},
	}
	saver := &tu.MemorySaver[models.LookupRow]{}
	runner, _ := newTestLookupRunner(provider, saver, testLookupOptions())
	runner.SetHalt(halt)

	report, err := runner.Run(context.Background(), lookupRows("id:1", "id:2", "id:3"), nil)
	if err != nil {
		t.Fatalf("a halt is not an error, got %v", err)
	}
	if report.StopReason != models.StopCancelled || report.Processed != 2 {
		t.Errorf("expected a cancelled run with 2 rows processed, got %+v", report)
	}
	if saver.Last[1].Lookup.Status != models.LookupFound {
		t.Errorf("row in flight should be completed, got %q", saver.Last[1].Lookup.Status)
	}
	if provider.CallCount("id:3") != 0 {
		t.Error("no row should start after a halt")
	}
}

func TestLookupRunner_CallTimeoutIsRetried(t *testing.T) {
	opts := testLookupOptions()
	opts.CallTimeout = 10 * time.Millisecond
	opts.RetryAttempts = 2

	provider := &tu.MockProvider{
		OnLookup: func(ctx context.Context, _ models.Track) { <-ctx.Done() },
	}
	runner, _ := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, opts)

	rows := lookupRows("id:1")
	if _, err := runner.Run(context.Background(), rows, nil); err != nil {
		t.Fatal(err)
	}
	if provider.CallCount("id:1") != 2 {
		t.Errorf("expected the timed out call to be retried, got %d calls", provider.CallCount("id:1"))
	}
	if rows[0].Lookup.Status != models.LookupError || !strings.Contains(rows[0].Lookup.Note, "timed out") {
		t.Errorf("expected timeout recorded as error, got %+v", rows[0].Lookup)
	}
}

func TestLookupRunner_MissingIdentity(t *testing.T) {
	provider := &tu.MockProvider{}
	runner, clock := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, testLookupOptions())

	rows := lookupRows("", "id:2")
	if _, err := runner.Run(context.Background(), rows, nil); err != nil {
		t.Fatal(err)
	}
	if rows[0].Lookup.Status != models.LookupError {
		t.Errorf("expected error for a row without identity, got %q", rows[0].Lookup.Status)
	}
	if got := provider.Calls(); len(got) != 1 || got[0] != "id:2" {
		t.Errorf("provider should only see id:2, got %v", got)
	}
	if len(clock.Slept()) != 0 {
		t.Errorf("no delay is needed before the first provider call, got %v", clock.Slept())
	}
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	provider := &tu.MockProvider{}
	runner, _ := newTestLookupRunner(provider, &tu.MemorySaver[models.LookupRow]{}, testLookupOptions())

	// Nobody reads from this channel.
	progress := make(chan ProgressUpdate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := runner.Run(context.Background(), lookupRows("id:1", "id:2"), progress); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() blocked on progress sends")
	}
}
