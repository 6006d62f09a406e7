package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mangax/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "mangax",
		Usage:    "Migrate a manga reading list to AniList",
		Version:  "0.3.0",
		Flags:    globalFlags(),
		Before:   runner.Configure,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrStateLocked):
			logger.Error("another mangax process is using the database", "path", runner.config.Database.Path)
			os.Exit(2)
		case errors.Is(err, shared.ErrAuthFailed):
			logger.Error("the catalog rejected the request, check catalog.access_token", "err", err)
			os.Exit(1)
		case errors.Is(err, shared.ErrRateLimited):
			logger.Error("rate limited by the catalog, wait a minute and run 'mangax match resume'", "err", err)
			os.Exit(1)
		case errors.Is(err, context.Canceled):
			logger.Warn("interrupted")
			os.Exit(130)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
