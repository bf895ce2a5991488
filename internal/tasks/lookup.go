package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/shared"
)

// LookupOptions configures a [LookupRunner].
type LookupOptions struct {
	Stage           models.Stage
	MinDelay        time.Duration // Lower bound of the pause between provider calls
	MaxDelay        time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	CallTimeout     time.Duration
	CheckpointEvery int           // Save after this many processed rows
	MaxRows         int           // Zero means no limit
	MaxRuntime      time.Duration // Zero means no limit
	ForceRetry      bool          // Re-open not_found and error rows
}

// NewLookupOptions builds options for stage from the pipeline settings.
func NewLookupOptions(stage models.Stage, cfg shared.PipelineConfig) LookupOptions {
	lo, hi := cfg.DelayRange()
	return LookupOptions{
		Stage:           stage,
		MinDelay:        lo,
		MaxDelay:        hi,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff(),
		CallTimeout:     cfg.CallTimeout(),
		CheckpointEvery: cfg.CheckpointEvery,
		MaxRows:         cfg.MaxRows,
		MaxRuntime:      cfg.MaxRuntime(),
		ForceRetry:      cfg.ForceRetry,
	}
}

// LookupRunner drives one link provider over the rows of a checkpoint, one row at a time.
type LookupRunner struct {
	provider services.LinkProvider
	saver    Saver[models.LookupRow]
	opts     LookupOptions
	logger   *log.Logger
	clock    Clock
	rng      *rand.Rand
	halt     *Halt
}

// NewLookupRunner creates a runner that saves progress through saver.
func NewLookupRunner(provider services.LinkProvider, saver Saver[models.LookupRow], opts LookupOptions, logger *log.Logger) *LookupRunner {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	return &LookupRunner{
		provider: provider,
		saver:    saver,
		opts:     opts,
		logger:   shared.WithLogger(logger, "stage", string(opts.Stage)),
		clock:    SystemClock{},
	}
}

// SetClock replaces the clock used for delays, backoff and the runtime ceiling.
func (r *LookupRunner) SetClock(c Clock) { r.clock = c }

// SetRand replaces the source of the randomized delays.
func (r *LookupRunner) SetRand(rng *rand.Rand) { r.rng = rng }

// SetHalt lets h stop the run between rows.
func (r *LookupRunner) SetHalt(h *Halt) { r.halt = h }

// Run processes, in order, every row that needs a lookup and updates it in place.
//
// The full row set is saved every CheckpointEvery processed rows and once more on return. Run stops
// early, without error, on cancellation, a [Halt] request, MaxRows or MaxRuntime. An authentication
// failure saves and returns an error wrapping [shared.ErrAuthFailed].
func (r *LookupRunner) Run(ctx context.Context, rows []models.LookupRow, progress chan<- ProgressUpdate) (Report, error) {
	if r.provider == nil {
		return Report{Stage: r.opts.Stage}, fmt.Errorf("%w: no link provider for %s", shared.ErrMissingArgument, r.opts.Stage)
	}

	pace := newPacer(r.clock, r.rng, r.opts.MaxRuntime)
	policy := retryPolicy{attempts: r.opts.RetryAttempts, backoff: r.opts.RetryBackoff, timeout: r.opts.CallTimeout}

	pending := 0
	for i := range rows {
		if rows[i].Lookup.Status.NeedsWork(r.opts.ForceRetry) {
			pending++
		}
	}
	sendProgress(progress, loadRowsUpdate(r.opts.Stage, pending, len(rows)))
	r.logger.Info("starting lookups", "provider", r.provider.Name(), "rows", len(rows), "pending", pending)

	report := Report{Stage: r.opts.Stage, StopReason: models.StopCompleted}
	sinceSave := 0
	called := false
	var runErr error

	for i := range rows {
		row := &rows[i]
		if !row.Lookup.Status.NeedsWork(r.opts.ForceRetry) {
			continue
		}

		if reason, stop := r.shouldStop(ctx, pace, report.Processed); stop {
			report.StopReason = reason
			break
		}

		if called {
			if err := pace.wait(ctx, r.opts.MinDelay, r.opts.MaxDelay); err != nil || r.halt.Requested() {
				report.StopReason = models.StopCancelled
				break
			}
		}

		result, err := r.lookup(ctx, pace.clock, policy, row)
		called = called || row.HasIdentity()
		if ctx.Err() != nil {
			report.StopReason = models.StopCancelled
			break
		}
		if shared.Classify(err) == shared.KindAuth {
			report.StopReason = models.StopAuth
			runErr = fmt.Errorf("%s: %w", r.provider.Name(), err)
			r.logger.Error("authentication failed, stopping", "err", err)
			break
		}

		row.Lookup = result
		report.Processed++
		if result.Status == models.LookupFound {
			report.Succeeded++
		} else {
			report.Failed++
		}
		sendProgress(progress, lookupRowUpdate(r.opts.Stage, report.Processed, pending, row))
		r.logger.Debug("looked up", "uri", row.URI, "status", result.Status, "note", result.Note)

		if sinceSave++; sinceSave >= r.opts.CheckpointEvery {
			if err := persist(r.saver, rows); err != nil {
				report.StopReason = models.StopFailed
				runErr = err
				break
			}
			sendProgress(progress, saveUpdate(r.opts.Stage, r.saver.Path(), report.Processed))
			sinceSave = 0
		}
	}

	if report.StopReason != models.StopFailed {
		if err := persist(r.saver, rows); err != nil {
			report.StopReason = models.StopFailed
			runErr = errors.Join(runErr, err)
		}
	}

	report.Statuses = make(map[string]int)
	for i := range rows {
		report.Statuses[string(rows[i].Lookup.Status)]++
		if !rows[i].Lookup.Status.IsTerminal() {
			report.Remaining++
		}
	}
	report.Elapsed = pace.elapsed()

	r.logger.Info("lookups finished", "reason", report.StopReason, "processed", report.Processed,
		"found", report.Succeeded, "remaining", report.Remaining, "elapsed", report.Elapsed.Round(time.Second))
	sendProgress(progress, finishedUpdate(r.opts.Stage, report))
	return report, runErr
}

func (r *LookupRunner) shouldStop(ctx context.Context, pace *pacer, processed int) (models.StopReason, bool) {
	switch {
	case ctx.Err() != nil, r.halt.Requested():
		return models.StopCancelled, true
	case pace.expired():
		r.logger.Warn("runtime limit reached", "limit", r.opts.MaxRuntime)
		return models.StopRuntimeLimit, true
	case r.opts.MaxRows > 0 && processed >= r.opts.MaxRows:
		return models.StopMaxRows, true
	}
	return "", false
}

// lookup calls the provider for one track and collapses the result into a [models.LookupResult].
//
// The returned error is only meaningful to the caller for auth failures, cancellation and the
// missing-identity check; every other failure is already recorded in the result.
func (r *LookupRunner) lookup(ctx context.Context, clock Clock, policy retryPolicy, row *models.LookupRow) (models.LookupResult, error) {
	now := clock.Now().UTC()
	if !row.HasIdentity() {
		err := fmt.Errorf("%w: missing track identity", shared.ErrInvalidInput)
		return models.LookupResult{Status: models.LookupError, Note: err.Error(), At: now}, err
	}

	track := row.Track
	candidates, err := callWithRetry(ctx, clock, policy, r.logger, r.provider.Name()+" lookup",
		func(ctx context.Context) ([]services.Candidate, error) {
			return r.provider.Lookup(ctx, track)
		})

	outcome, link, note := classifyLookup(candidates, err)
	return models.LookupResult{
		Link:   link,
		Status: models.NextLookupStatus(row.Lookup.Status, outcome),
		Note:   note,
		At:     now,
	}, err
}

// classifyLookup maps a provider response onto found, not-found or error.
func classifyLookup(candidates []services.Candidate, err error) (models.LookupOutcome, string, string) {
	if err != nil {
		if shared.Classify(err) == shared.KindNotFound {
			return models.OutcomeNotFound, "", err.Error()
		}
		return models.OutcomeError, "", err.Error()
	}
	for _, c := range candidates {
		if c.Link != "" {
			return models.OutcomeFound, shared.CanonicalYouTubeURL(c.Link), c.Note
		}
	}
	return models.OutcomeNotFound, "", "no link"
}
