package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/tasks"
)

// Download fetches and tags audio for every master row, resuming from the download checkpoint.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	master := pick(cmd, "master", cfg.Paths.Master)
	path := pick(cmd, "checkpoint", cfg.Paths.Downloads)
	outputDir := pick(cmd, "output-dir", cfg.Paths.OutputDir)

	return r.runStage(ctx, stageRun{
		stage:      models.StageDownload,
		checkpoint: path,
		tui:        cmd.Bool("tui"),
		prepare: func(logger *log.Logger, halt *tasks.Halt) (stageFunc, error) {
			store, rows, err := checkpoint.OpenDownloads(path, master)
			if err != nil {
				return nil, err
			}

			opts := tasks.NewDownloadOptions(cfg.Pipeline, cfg.Download, outputDir)
			applyLimits(cmd, &opts.MaxRows, &opts.MaxRuntime)
			if cmd.Bool("retry-failed") {
				opts.RetryFailed = true
			}

			var tagger services.Tagger
			if cfg.Download.EmbedMetadata {
				tagger = services.NewID3Tagger(cfg.Download, r.httpClient, logger)
			}

			orchestrator := tasks.NewDownloadOrchestrator(
				services.NewYtDlpService(cfg.Download),
				tagger,
				services.FileInspector{},
				store,
				opts,
				logger,
			)
			orchestrator.SetHalt(halt)
			return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (tasks.Report, error) {
				return orchestrator.Run(ctx, rows, progress)
			}, nil
		},
	})
}
