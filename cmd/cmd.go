// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// stageFlags are shared by every row-processing stage.
func stageFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.IntFlag{
			Name:  "max-rows",
			Usage: "Stop after this many rows (0 uses the configured value)",
		},
		&cli.IntFlag{
			Name:  "max-runtime",
			Usage: "Stop cleanly after this many minutes (0 uses the configured value)",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show the interactive progress dashboard",
		},
	}
}

// setupCommand handles setup operations for configuration and the run ledger.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the run ledger and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// lookupCommand runs one link provider over the library export.
func lookupCommand(r *Runner) *cli.Command {
	flags := func(defaultHint string) []cli.Flag {
		return append(stageFlags(),
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Library export CSV (used when no checkpoint exists yet)",
			},
			&cli.StringFlag{
				Name:    "checkpoint",
				Aliases: []string{"o"},
				Usage:   "Checkpoint CSV (default: paths." + defaultHint + ")",
			},
			&cli.BoolFlag{
				Name:  "force-retry",
				Usage: "Retry rows that ended not_found or error",
			},
		)
	}

	return &cli.Command{
		Name:  "lookup",
		Usage: "Find YouTube links for every track",
		Commands: []*cli.Command{
			{
				Name:   "songstats",
				Usage:  "Primary provider: Songstats page of each ISRC",
				Flags:  flags("songstats"),
				Action: r.LookupSongstats,
			},
			{
				Name:   "discogs",
				Usage:  "Fallback provider: album videos on Discogs",
				Flags:  flags("discogs"),
				Action: r.LookupDiscogs,
			},
		},
	}
}

// mergeCommand reconciles the provider checkpoints.
func mergeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Reconcile both provider checkpoints into the master checkpoint",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "primary", Usage: "Songstats checkpoint (default: paths.songstats)"},
			&cli.StringFlag{Name: "fallback", Usage: "Discogs checkpoint (default: paths.discogs)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Master checkpoint (default: paths.master)"},
		},
		Action: r.Merge,
	}
}

// downloadCommand drives the download orchestrator.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download and tag audio for every reconciled track",
		Flags: append(stageFlags(),
			&cli.StringFlag{Name: "master", Usage: "Master checkpoint (default: paths.master)"},
			&cli.StringFlag{Name: "checkpoint", Aliases: []string{"o"}, Usage: "Download checkpoint (default: paths.downloads)"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"d"}, Usage: "Audio directory (default: paths.output_dir)"},
			&cli.BoolFlag{Name: "retry-failed", Usage: "Retry rows that ended failed_error"},
		),
		Action: r.Download,
	}
}

// reportCommand prints link and download coverage.
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Show link coverage and download progress",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "master", Usage: "Master checkpoint (default: paths.master)"},
			&cli.StringFlag{Name: "downloads", Usage: "Download checkpoint (default: paths.downloads)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "text, markdown or json", Value: "text"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to a file instead of stdout"},
		},
		Action: r.Report,
	}
}

// historyCommand lists recorded stage runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded stage runs",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "stage", Usage: "Only runs of this stage (lookup_songstats, lookup_discogs, merge, download)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of runs", Value: 20},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "text, markdown or json", Value: "text"},
		},
		Action: r.History,
	}
}
