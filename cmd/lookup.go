package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/services"
	"github.com/llahellec/de-spotify/internal/shared"
	"github.com/llahellec/de-spotify/internal/tasks"
)

// LookupSongstats runs the primary provider over the library export.
//
// Rows without an ISRC are resolved through Spotify when client credentials are configured.
func (r *Runner) LookupSongstats(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	return r.runLookup(ctx, cmd, cfg, models.StageSongstats, cfg.Paths.Songstats, func(*log.Logger) (services.LinkProvider, error) {
		var resolver services.ISRCResolver
		if cfg.Credentials.Spotify.ClientID != "" {
			spotify, err := services.NewSpotifyService(cfg.Credentials.Spotify)
			if err != nil {
				return nil, err
			}
			resolver = spotify
		} else {
			r.logger.Warn("no Spotify credentials: tracks without ISRC will be not_found")
		}
		return services.NewSongstatsService(cfg.Songstats, resolver, r.httpClient), nil
	})
}

// LookupDiscogs runs the fallback provider over the library export.
func (r *Runner) LookupDiscogs(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	return r.runLookup(ctx, cmd, cfg, models.StageDiscogs, cfg.Paths.Discogs, func(logger *log.Logger) (services.LinkProvider, error) {
		return services.NewDiscogsService(cfg.Credentials.Discogs, cfg.Discogs, r.httpClient, logger)
	})
}

func (r *Runner) runLookup(
	ctx context.Context,
	cmd *cli.Command,
	cfg *shared.Config,
	stage models.Stage,
	defaultCheckpoint string,
	newProvider func(*log.Logger) (services.LinkProvider, error),
) error {
	path := pick(cmd, "checkpoint", defaultCheckpoint)
	input := pick(cmd, "input", cfg.Paths.Input)

	return r.runStage(ctx, stageRun{
		stage:      stage,
		checkpoint: path,
		tui:        cmd.Bool("tui"),
		prepare: func(logger *log.Logger, halt *tasks.Halt) (stageFunc, error) {
			provider, err := newProvider(logger)
			if err != nil {
				return nil, err
			}

			store, rows, err := checkpoint.OpenLookup(path, input)
			if err != nil {
				return nil, err
			}

			opts := tasks.NewLookupOptions(stage, cfg.Pipeline)
			applyLimits(cmd, &opts.MaxRows, &opts.MaxRuntime)
			if cmd.Bool("force-retry") {
				opts.ForceRetry = true
			}

			runner := tasks.NewLookupRunner(provider, store, opts, logger)
			runner.SetHalt(halt)
			return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (tasks.Report, error) {
				return runner.Run(ctx, rows, progress)
			}, nil
		},
	})
}
