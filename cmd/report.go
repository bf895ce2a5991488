package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/formatter"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/repositories"
	"github.com/llahellec/de-spotify/internal/shared"
)

// Report prints link coverage from the master checkpoint and, when it exists, download progress.
func (r *Runner) Report(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	master, _, err := checkpoint.LoadMaster(pick(cmd, "master", cfg.Paths.Master))
	if err != nil {
		return err
	}

	var downloads []models.DownloadRecord
	if path := pick(cmd, "downloads", cfg.Paths.Downloads); shared.FileExists(path) {
		if downloads, _, err = checkpoint.LoadDownloads(path); err != nil {
			return err
		}
	}

	out, err := formatter.BuildCoverage(master, downloads).Render(format)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := shared.WriteFileAtomic(path, []byte(out), 0o644); err != nil {
			return err
		}
		r.logger.Info("report written", "path", path)
		return nil
	}
	return r.writePlain("%s", out)
}

// History lists recorded stage runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if stage := cmd.String("stage"); stage != "" {
		if !models.Stage(stage).Valid() {
			return fmt.Errorf("%w: unknown stage %q", shared.ErrInvalidInput, stage)
		}
		criteria["stage"] = models.Stage(stage)
	}

	db, err := r.openLedger(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(criteria)
	if err != nil {
		return err
	}
	if len(runs) == 0 && format != formatter.FormatJSON {
		return r.writePlain("No runs recorded in %s\n", cfg.Database.Path)
	}

	out, err := formatter.RenderRuns(runs, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", out)
}
