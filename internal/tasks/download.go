package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/shared"
)

// DownloadOptions configures a [DownloadOrchestrator].
type DownloadOptions struct {
	OutputDir        string
	AudioFormat      string // File extension of fetched audio
	TolerancePercent float64
	ToleranceFloor   time.Duration // Absolute slack accepted on top of the percentage
	SearchLimit      int
	MinDelay         time.Duration
	MaxDelay         time.Duration
	EmbedMetadata    bool
	RetryAttempts    int
	RetryBackoff     time.Duration
	CallTimeout      time.Duration // Probe, search and tagging
	FetchTimeout     time.Duration
	CheckpointEvery  int
	MaxRows          int
	MaxRuntime       time.Duration
	RetryFailed      bool // Re-open failed_error rows

	LongPauseEvery int // Successful downloads between long pauses; zero disables
	LongPauseMin   time.Duration
	LongPauseMax   time.Duration
	CooldownAfter  int // Consecutive transient failures before a cool-down; zero disables
	Cooldown       time.Duration
}

// NewDownloadOptions builds options from the pipeline and download settings.
func NewDownloadOptions(p shared.PipelineConfig, d shared.DownloadConfig, outputDir string) DownloadOptions {
	lo, hi := d.DelayRange()
	pauseLo, pauseHi := d.LongPauseRange()
	return DownloadOptions{
		OutputDir:        outputDir,
		AudioFormat:      d.AudioFormat,
		TolerancePercent: d.TolerancePercent,
		ToleranceFloor:   time.Duration(d.ToleranceFloorSeconds) * time.Second,
		SearchLimit:      d.SearchLimit,
		MinDelay:         lo,
		MaxDelay:         hi,
		EmbedMetadata:    d.EmbedMetadata,
		RetryAttempts:    p.RetryAttempts,
		RetryBackoff:     p.RetryBackoff(),
		CallTimeout:      p.CallTimeout(),
		FetchTimeout:     d.FetchTimeout(),
		CheckpointEvery:  p.CheckpointEvery,
		MaxRows:          p.MaxRows,
		MaxRuntime:       p.MaxRuntime(),
		RetryFailed:      d.RetryFailed,
		LongPauseEvery:   d.LongPauseEvery,
		LongPauseMin:     pauseLo,
		LongPauseMax:     pauseHi,
		CooldownAfter:    d.CooldownAfterFailures,
		Cooldown:         d.Cooldown(),
	}
}

// WithinTolerance reports whether candidateMS is close enough to expectedMS:
// |c-e|/e <= percent/100, or |c-e| <= floor when floor is set.
//
// An unknown expected duration accepts anything; an unknown candidate duration is rejected.
func WithinTolerance(expectedMS, candidateMS int, percent float64, floor time.Duration) bool {
	if expectedMS <= 0 {
		return true
	}
	if candidateMS <= 0 {
		return false
	}
	diff := math.Abs(float64(candidateMS - expectedMS))
	if diff*100 <= percent*float64(expectedMS) {
		return true
	}
	return floor > 0 && diff <= float64(floor.Milliseconds())
}

// DownloadOrchestrator fetches and tags the audio of each master row, one row at a time.
type DownloadOrchestrator struct {
	downloader services.Downloader
	tagger     services.Tagger
	inspector  services.AudioInspector
	saver      Saver[models.DownloadRecord]
	opts       DownloadOptions
	logger     *log.Logger
	clock      Clock
	rng        *rand.Rand
	halt       *Halt
}

// NewDownloadOrchestrator creates an orchestrator. tagger may be nil when metadata is not embedded;
// a nil inspector treats any existing file at the target path as valid.
func NewDownloadOrchestrator(
	downloader services.Downloader,
	tagger services.Tagger,
	inspector services.AudioInspector,
	saver Saver[models.DownloadRecord],
	opts DownloadOptions,
	logger *log.Logger,
) *DownloadOrchestrator {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	if opts.SearchLimit < 1 {
		opts.SearchLimit = 1
	}
	if inspector == nil {
		inspector = existsInspector{}
	}
	return &DownloadOrchestrator{
		downloader: downloader,
		tagger:     tagger,
		inspector:  inspector,
		saver:      saver,
		opts:       opts,
		logger:     shared.WithLogger(logger, "stage", string(models.StageDownload)),
		clock:      SystemClock{},
	}
}

func (o *DownloadOrchestrator) SetClock(c Clock)       { o.clock = c }
func (o *DownloadOrchestrator) SetRand(rng *rand.Rand) { o.rng = rng }

// SetHalt lets h stop the run between rows.
func (o *DownloadOrchestrator) SetHalt(h *Halt) { o.halt = h }

type existsInspector struct{}

func (existsInspector) IsAudio(path string) bool { return shared.FileExists(path) }

// downloadState carries the pacing counters of one run.
type downloadState struct {
	pace        *pacer
	processed   int
	downloaded  int
	consecutive int // Transient failures in a row
	sinceSave   int
}

// Run processes every row that needs a download, in order, and updates it in place.
//
// Rows are marked in-progress only in memory; a row interrupted by cancellation is restored to its
// previous state before the checkpoint is written. The runtime ceiling and any [Halt] request are
// checked before each row, so the row in flight when they trigger is always completed.
func (o *DownloadOrchestrator) Run(ctx context.Context, rows []models.DownloadRecord, progress chan<- ProgressUpdate) (Report, error) {
	if o.downloader == nil {
		return Report{Stage: models.StageDownload}, fmt.Errorf("%w: no downloader configured", shared.ErrMissingArgument)
	}

	st := &downloadState{pace: newPacer(o.clock, o.rng, o.opts.MaxRuntime)}
	pending := 0
	for i := range rows {
		if rows[i].Status.NeedsWork(o.opts.RetryFailed) {
			pending++
		}
	}
	sendProgress(progress, loadRowsUpdate(models.StageDownload, pending, len(rows)))
	o.logger.Info("starting downloads", "rows", len(rows), "pending", pending, "dir", o.opts.OutputDir)

	report := Report{Stage: models.StageDownload, StopReason: models.StopCompleted}
	paced := false
	var runErr error

	for i := range rows {
		rec := &rows[i]
		if !rec.Status.NeedsWork(o.opts.RetryFailed) {
			continue
		}

		switch {
		case ctx.Err() != nil, o.halt.Requested():
			report.StopReason = models.StopCancelled
		case st.pace.expired():
			o.logger.Warn("runtime limit reached", "limit", o.opts.MaxRuntime)
			report.StopReason = models.StopRuntimeLimit
		case o.opts.MaxRows > 0 && st.processed >= o.opts.MaxRows:
			report.StopReason = models.StopMaxRows
		}
		if report.StopReason != models.StopCompleted {
			break
		}

		if paced {
			if err := st.pace.wait(ctx, o.opts.MinDelay, o.opts.MaxDelay); err != nil || o.halt.Requested() {
				report.StopReason = models.StopCancelled
				break
			}
		}

		before := *rec
		rec.Status = rec.Status.Begin()
		outcome, networked, err := o.process(ctx, st.pace, rec)
		if ctx.Err() != nil {
			*rec = before
			report.StopReason = models.StopCancelled
			break
		}
		paced = networked

		rec.Status = models.FinishDownload(outcome)
		rec.At = st.pace.clock.Now().UTC()
		rec.DownloadNote = ""
		if err != nil {
			rec.DownloadNote = err.Error()
		}

		st.processed++
		report.Processed++
		if rec.Status.IsDone() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		sendProgress(progress, downloadRowUpdate(report.Processed, pending, rec))
		o.logger.Info("row finished", "uri", rec.URI, "status", rec.Status, "path", rec.FilePath, "note", rec.DownloadNote)

		if st.sinceSave++; st.sinceSave >= o.opts.CheckpointEvery {
			if err := persist(o.saver, rows); err != nil {
				report.StopReason = models.StopFailed
				runErr = err
				break
			}
			sendProgress(progress, saveUpdate(models.StageDownload, o.saver.Path(), report.Processed))
			st.sinceSave = 0
		}

		if err := o.afterRow(ctx, st, outcome, err, progress); err != nil {
			report.StopReason = models.StopCancelled
			break
		}
	}

	if report.StopReason != models.StopFailed {
		if err := persist(o.saver, rows); err != nil {
			report.StopReason = models.StopFailed
			runErr = errors.Join(runErr, err)
		}
	}

	report.Statuses = make(map[string]int)
	for i := range rows {
		report.Statuses[string(rows[i].Status.Persisted())]++
		if !rows[i].Status.IsTerminal() {
			report.Remaining++
		}
	}
	report.Elapsed = st.pace.elapsed()

	o.logger.Info("downloads finished", "reason", report.StopReason, "processed", report.Processed,
		"ok", report.Succeeded, "failed", report.Failed, "remaining", report.Remaining,
		"elapsed", report.Elapsed.Round(time.Second))
	sendProgress(progress, finishedUpdate(models.StageDownload, report))
	return report, runErr
}

// afterRow applies the long pause after every LongPauseEvery downloads and the cool-down after
// CooldownAfter consecutive transient failures.
func (o *DownloadOrchestrator) afterRow(ctx context.Context, st *downloadState, outcome models.DownloadOutcome, err error, progress chan<- ProgressUpdate) error {
	switch {
	case outcome == models.OutcomeDownloaded:
		st.downloaded++
		st.consecutive = 0
		if o.opts.LongPauseEvery > 0 && st.downloaded%o.opts.LongPauseEvery == 0 {
			d := st.pace.between(o.opts.LongPauseMin, o.opts.LongPauseMax)
			o.logger.Info("long pause", "downloads", st.downloaded, "pause", d.Round(time.Second))
			sendProgress(progress, pauseUpdate(models.StageDownload, d, fmt.Sprintf("%d downloads", st.downloaded)))
			return st.pace.clock.Sleep(ctx, d)
		}
	case err != nil && shared.Classify(err) == shared.KindTransient:
		st.consecutive++
		if o.opts.CooldownAfter > 0 && st.consecutive >= o.opts.CooldownAfter {
			o.logger.Warn("too many consecutive failures, cooling down", "failures", st.consecutive, "pause", o.opts.Cooldown)
			sendProgress(progress, pauseUpdate(models.StageDownload, o.opts.Cooldown, fmt.Sprintf("%d consecutive failures", st.consecutive)))
			st.consecutive = 0
			return st.pace.clock.Sleep(ctx, o.opts.Cooldown)
		}
	case outcome != models.OutcomeFailed:
		st.consecutive = 0
	}
	return nil
}

// process runs one row to an outcome. networked reports whether an external call was made, which
// decides if the next row waits the inter-row delay. A non-nil error explains a failure outcome.
func (o *DownloadOrchestrator) process(ctx context.Context, pace *pacer, rec *models.DownloadRecord) (models.DownloadOutcome, bool, error) {
	rec.Attempts++

	if rec.Link == "" && rec.AltLink == "" && rec.Title == "" {
		return models.OutcomeFailed, false, fmt.Errorf("%w: row has neither a link nor a title", shared.ErrInvalidInput)
	}

	base := shared.TrackBasePath(o.opts.OutputDir, rec.PrimaryArtist(), rec.Album, rec.Title)
	target := base + "." + o.opts.AudioFormat
	if o.inspector.IsAudio(target) {
		rec.FilePath = target
		o.embed(ctx, pace, rec)
		return models.OutcomeExisting, false, nil
	}

	probePolicy := retryPolicy{attempts: o.opts.RetryAttempts, backoff: o.opts.RetryBackoff, timeout: o.opts.CallTimeout}

	var lastErr error
	for _, link := range directLinks(rec.MasterRecord) {
		media, err := callWithRetry(ctx, pace.clock, probePolicy, o.logger, "probe",
			func(ctx context.Context) (*services.Media, error) {
				return o.downloader.Probe(ctx, link)
			})
		if err != nil {
			if ctx.Err() != nil || !fallsThrough(err) {
				return models.OutcomeFailed, true, fmt.Errorf("probe %s: %w", link, err)
			}
			o.logger.Warn("direct link unusable", "uri", rec.URI, "link", link, "err", err)
			lastErr = err
			continue
		}
		if media.DurationMS > 0 && !o.withinTolerance(rec.DurationMS, media.DurationMS) {
			o.logger.Warn("direct link duration mismatch", "uri", rec.URI, "link", link,
				"expected", shared.FormatDuration(rec.DurationMS), "got", shared.FormatDuration(media.DurationMS))
			lastErr = fmt.Errorf("%w: %s is %s, expected %s", shared.ErrNoMatch, link,
				shared.FormatDuration(media.DurationMS), shared.FormatDuration(rec.DurationMS))
			continue
		}

		outcome, err := o.fetch(ctx, pace, rec, link, media, base, "")
		if outcome == models.OutcomeDownloaded || !fallsThrough(err) {
			return outcome, true, err
		}
		lastErr = err
	}

	query := shared.BuildSearchQuery(rec.PrimaryArtist(), rec.Title)
	results, err := callWithRetry(ctx, pace.clock, probePolicy, o.logger, "search",
		func(ctx context.Context) ([]services.Media, error) {
			return o.downloader.Search(ctx, query, o.opts.SearchLimit)
		})
	if err != nil {
		if shared.Classify(err) == shared.KindNotFound {
			return models.OutcomeNoMatch, true, fmt.Errorf("no search results for %q: %w", query, err)
		}
		return models.OutcomeFailed, true, fmt.Errorf("search %q: %w", query, err)
	}

	for i := range results {
		m := &results[i]
		if !o.withinTolerance(rec.DurationMS, m.DurationMS) {
			o.logger.Debug("candidate outside tolerance", "uri", rec.URI, "candidate", m.URL,
				"expected", shared.FormatDuration(rec.DurationMS), "got", shared.FormatDuration(m.DurationMS))
			continue
		}

		outcome, err := o.fetch(ctx, pace, rec, m.URL, m, base, m.URL)
		if outcome == models.OutcomeDownloaded || !fallsThrough(err) {
			return outcome, true, err
		}
		lastErr = err
	}

	msg := fmt.Sprintf("no candidate for %q within %.0f%% of %s", query, o.opts.TolerancePercent, shared.FormatDuration(rec.DurationMS))
	if lastErr != nil {
		return models.OutcomeNoMatch, true, fmt.Errorf("%s (last error: %v): %w", msg, lastErr, shared.ErrNoMatch)
	}
	return models.OutcomeNoMatch, true, fmt.Errorf("%s: %w", msg, shared.ErrNoMatch)
}

// fetch downloads link and records the result in rec. searched is the search result link, or empty
// for a direct link.
func (o *DownloadOrchestrator) fetch(
	ctx context.Context,
	pace *pacer,
	rec *models.DownloadRecord,
	link string,
	media *services.Media,
	base string,
	searched string,
) (models.DownloadOutcome, error) {
	policy := retryPolicy{attempts: o.opts.RetryAttempts, backoff: o.opts.RetryBackoff, timeout: o.opts.FetchTimeout}
	path, err := callWithRetry(ctx, pace.clock, policy, o.logger, "fetch",
		func(ctx context.Context) (string, error) {
			return o.downloader.Fetch(ctx, link, base)
		})
	if err != nil {
		o.logger.Warn("download failed", "uri", rec.URI, "link", link, "err", err)
		return models.OutcomeFailed, fmt.Errorf("download %s: %w", link, err)
	}

	rec.FilePath = path
	rec.ActualDurationMS = media.DurationMS
	rec.SearchedLink = searched
	rec.MetadataEmbedded = false
	o.embed(ctx, pace, rec)
	return models.OutcomeDownloaded, nil
}

// embed tags the row's file when metadata embedding is on and it has not been done yet.
// A tagging failure leaves the flag unset and does not fail the row.
func (o *DownloadOrchestrator) embed(ctx context.Context, pace *pacer, rec *models.DownloadRecord) {
	if !o.opts.EmbedMetadata || o.tagger == nil || rec.MetadataEmbedded || rec.FilePath == "" {
		return
	}
	policy := retryPolicy{attempts: 1, timeout: o.opts.CallTimeout}
	_, err := callWithRetry(ctx, pace.clock, policy, o.logger, "tag",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.tagger.Tag(ctx, rec.FilePath, rec.Track)
		})
	if err != nil {
		o.logger.Warn("could not embed metadata", "path", rec.FilePath, "err", err)
		return
	}
	rec.MetadataEmbedded = true
}

func (o *DownloadOrchestrator) withinTolerance(expectedMS, candidateMS int) bool {
	return WithinTolerance(expectedMS, candidateMS, o.opts.TolerancePercent, o.opts.ToleranceFloor)
}

// directLinks are the links tried before searching: the resolved link, then provider B's differing
// link.
func directLinks(m models.MasterRecord) []string {
	var links []string
	if m.Link != "" {
		links = append(links, m.Link)
	}
	if m.AltLink != "" && shared.CanonicalYouTubeURL(m.AltLink) != shared.CanonicalYouTubeURL(m.Link) {
		links = append(links, m.AltLink)
	}
	return links
}

// fallsThrough reports whether a failed fetch should move on to the next source: the stream is gone,
// not the network.
func fallsThrough(err error) bool {
	kind := shared.Classify(err)
	return kind == shared.KindNotFound || kind == shared.KindValidation
}
