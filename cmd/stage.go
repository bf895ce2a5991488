package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/repositories"
	"github.com/llahellec/de-spotify/internal/shared"
	"github.com/llahellec/de-spotify/internal/tasks"
	"github.com/llahellec/de-spotify/internal/ui"
)

// stageFunc runs a prepared stage, sending progress until it returns.
type stageFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (tasks.Report, error)

// stageRun describes one invocation of a stage command.
type stageRun struct {
	stage      models.Stage
	checkpoint string // File the stage owns for the duration of the run
	tui        bool
	// prepare loads rows and builds the stage once the checkpoint is locked. Stages that work row
	// by row stop between rows once halt is requested.
	prepare func(logger *log.Logger, halt *tasks.Halt) (stageFunc, error)
}

// lockCheckpoint takes the advisory lock guarding path against a second process.
func lockCheckpoint(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create checkpoint directory: %w", shared.ErrFilesystem, err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire lock: %w", shared.ErrFilesystem, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrCheckpointLocked, path)
	}
	return lock, nil
}

// runStage locks the checkpoint, records the run in the ledger and drives the stage
// alongside its progress display.
//
// Rows left without a terminal status are reported as [shared.ErrIncomplete].
func (r *Runner) runStage(ctx context.Context, s stageRun) error {
	lock, err := lockCheckpoint(s.checkpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release checkpoint lock", "err", err)
		}
	}()

	logger := shared.WithLogger(r.logger, "stage", string(s.stage))
	if s.tui {
		fileLogger, f, err := shared.NewFileLogger(s.checkpoint + ".log")
		if err != nil {
			return err
		}
		defer f.Close()
		fileLogger.SetLevel(r.logger.GetLevel())
		logger = shared.WithLogger(fileLogger, "stage", string(s.stage))
	}

	halt := new(tasks.Halt)
	run, err := s.prepare(logger, halt)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entry := r.startRun(s.stage, s.checkpoint)
	defer entry.close()

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	progress := make(chan tasks.ProgressUpdate, 64)

	var report tasks.Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(progress)
		var err error
		report, err = run(stageCtx, progress)
		return err
	})
	g.Go(func() error {
		if err := r.showProgress(gctx, s, progress, halt, cancel); err != nil {
			r.logger.Warn("progress display failed", "err", err)
		}
		return nil
	})
	err = g.Wait()

	entry.finish(report, err)

	if report.Stage == "" {
		report.Stage = s.stage
	}
	r.logger.Info("stage finished", "stage", s.stage, "summary", report.String())

	if err != nil {
		return err
	}
	if report.Incomplete() {
		return fmt.Errorf("%w: %d rows left after %s (%s)", shared.ErrIncomplete, report.Remaining, s.stage, report.StopReason)
	}
	return nil
}

// showProgress consumes updates until the stage closes the channel.
func (r *Runner) showProgress(ctx context.Context, s stageRun, updates <-chan tasks.ProgressUpdate, halt *tasks.Halt, cancel context.CancelFunc) error {
	switch {
	case s.tui:
		return ui.Run(ctx, "de-spotify · "+string(s.stage), updates, halt.Request, cancel)
	case r.interactive:
		return showBar(os.Stderr, updates)
	default:
		return logProgress(r.logger, updates)
	}
}

func newBar(w io.Writer, stage models.Stage, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(string(stage)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// showBar renders a progress bar on an interactive terminal.
func showBar(w io.Writer, updates <-chan tasks.ProgressUpdate) error {
	var bar *progressbar.ProgressBar
	for u := range updates {
		switch u.Phase {
		case tasks.LoadRows:
			bar = newBar(w, u.Stage, u.Total)
		case tasks.LookupRow, tasks.DownloadRow, tasks.ReconcileRows:
			if bar == nil {
				bar = newBar(w, u.Stage, u.Total)
			}
			bar.Describe(truncate(u.Message, 48))
			_ = bar.Set(u.Step)
		case tasks.Pause:
			if bar != nil {
				bar.Describe(u.Message)
			}
		}
	}
	if bar != nil {
		return bar.Finish()
	}
	return nil
}

// logProgress writes row events as log lines when no terminal is attached.
func logProgress(logger *log.Logger, updates <-chan tasks.ProgressUpdate) error {
	for u := range updates {
		switch u.Phase {
		case tasks.LoadRows, tasks.LookupRow, tasks.DownloadRow, tasks.ReconcileRows, tasks.Pause:
			logger.Info(u.Message, "stage", u.Stage)
		case tasks.SaveCheckpoint:
			logger.Debug(u.Message, "stage", u.Stage)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s + strings.Repeat(" ", n-len(r))
	}
	return string(r[:n-1]) + "…"
}

// ledgerEntry is a run recorded in the ledger. A nil entry records nothing.
type ledgerEntry struct {
	repo   *repositories.RunRepository
	run    *models.Run
	close  func()
	logger *log.Logger
}

// startRun records a started run. Ledger failures are logged and never stop a stage.
func (r *Runner) startRun(stage models.Stage, checkpoint string) *ledgerEntry {
	noop := &ledgerEntry{close: func() {}}
	cfg := r.config
	if cfg == nil {
		return noop
	}

	db, err := r.openLedger(cfg.Database)
	if err != nil {
		r.logger.Warn("run ledger unavailable", "err", err)
		return noop
	}

	repo := repositories.NewRunRepository(db)
	run, err := repo.Start(stage, checkpoint)
	if err != nil {
		db.Close()
		r.logger.Warn("failed to record run", "err", err)
		return noop
	}
	return &ledgerEntry{repo: repo, run: run, close: func() { db.Close() }, logger: r.logger}
}

func (e *ledgerEntry) finish(report tasks.Report, err error) {
	if e.run == nil {
		return
	}
	reason := report.StopReason
	if (err != nil && reason == models.StopCompleted) || reason == "" {
		reason = models.StopFailed
	}
	e.run.Finish(reason, report.Processed, report.Succeeded, report.Failed, report.Remaining)
	if err := e.repo.Update(e.run); err != nil {
		e.logger.Warn("failed to record run result", "err", err)
	}
}

// applyLimits overrides the configured row and runtime limits with flags that are set.
func applyLimits(cmd *cli.Command, maxRows *int, maxRuntime *time.Duration) {
	if n := cmd.Int("max-rows"); n > 0 {
		*maxRows = int(n)
	}
	if m := cmd.Int("max-runtime"); m > 0 {
		*maxRuntime = time.Duration(m) * time.Minute
	}
}
