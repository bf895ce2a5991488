package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/checkpoint"
	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
	"github.com/llahellec/de-spotify/internal/tasks"
)

// Merge reconciles the Songstats and Discogs checkpoints into the master checkpoint.
//
// A missing Discogs checkpoint is treated as empty so the master can be built from Songstats alone.
func (r *Runner) Merge(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	primary := pick(cmd, "primary", cfg.Paths.Songstats)
	fallback := pick(cmd, "fallback", cfg.Paths.Discogs)
	output := pick(cmd, "output", cfg.Paths.Master)

	var stats tasks.ReconcileStats
	err = r.runStage(ctx, stageRun{
		stage:      models.StageMerge,
		checkpoint: output,
		prepare: func(logger *log.Logger, _ *tasks.Halt) (stageFunc, error) {
			rowsA, layout, err := checkpoint.LoadLookup(primary)
			if err != nil {
				return nil, err
			}

			var rowsB []models.LookupRow
			if shared.FileExists(fallback) {
				if rowsB, _, err = checkpoint.LoadLookup(fallback); err != nil {
					return nil, err
				}
			} else {
				logger.Warn("fallback checkpoint not found, merging primary only", "path", fallback)
			}

			store := checkpoint.NewMaster(output, layout)
			return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (tasks.Report, error) {
				var err error
				_, stats, err = tasks.Merge(rowsA, rowsB, store, progress)
				return mergeReport(stats), err
			}, nil
		},
	})
	if err != nil {
		return err
	}

	return r.writePlain("Merged %d tracks into %s: %d primary, %d fallback, %d without link (%.1f%% coverage)\n",
		stats.Total, output, stats.Primary, stats.Fallback, stats.None, stats.Coverage())
}

// mergeReport expresses reconcile statistics as a stage report; a merge never leaves rows behind.
func mergeReport(stats tasks.ReconcileStats) tasks.Report {
	return tasks.Report{
		Stage:      models.StageMerge,
		Processed:  stats.Total,
		Succeeded:  stats.Primary + stats.Fallback,
		Failed:     stats.None,
		StopReason: models.StopCompleted,
		Statuses: map[string]int{
			string(models.ProvenancePrimary):  stats.Primary,
			string(models.ProvenanceFallback): stats.Fallback,
			string(models.ProvenanceNone):     stats.None,
		},
	}
}
