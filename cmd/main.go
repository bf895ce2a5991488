package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/shared"
)

// exitIncomplete is returned when a stage stopped with rows still pending, so wrappers can loop.
const exitIncomplete = 2

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "de-spotify",
		Usage:    "Find, download and tag YouTube audio for a Spotify library export",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrIncomplete):
			logger.Warn("stage stopped early, run it again to resume", "err", err)
			os.Exit(exitIncomplete)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
