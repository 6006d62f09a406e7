// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "Override the state database path",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "exact-only",
			Usage: "Only keep candidates whose title closely matches (falls back to the best hit)",
		},
		&cli.BoolFlag{
			Name:  "bypass-cache",
			Usage: "Ignore cached search results",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the batch outcome as JSON",
		},
	}
}

// setupCommand handles first-time configuration
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the state database",
		Action: r.SetupDatabase,
	}
}

// matchCommand handles batch and single-title matching
func matchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "match",
		Aliases: []string{"m"},
		Usage:   "Match a reading list against the catalog",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Match every entry of an exported reading list",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Reading list export (.csv or .json)",
						Required: true,
					},
				}, batchFlags()...),
				Action: r.MatchRun,
			},
			{
				Name:  "resume",
				Usage: "Resume the last batch, keeping reviewed results",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Reading list to merge with (defaults to the previous session)",
					},
				}, batchFlags()...),
				Action: r.MatchResume,
			},
			{
				Name:      "search",
				Usage:     "Search the catalog for a single title",
				ArgsUsage: "TITLE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "exact-only", Usage: "Only keep close title matches"},
					&cli.BoolFlag{Name: "bypass-cache", Usage: "Ignore cached search results"},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.MatchSearch,
			},
			{
				Name:  "runs",
				Usage: "List recent batch runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs to show", Value: 10},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.MatchRuns,
			},
		},
	}
}

// reviewCommand handles manual review of batch results
func reviewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "review",
		Aliases: []string{"r"},
		Usage:   "Review match results",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List results",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "status",
						Aliases: []string{"s"},
						Usage:   "Only show results with this status (pending, matched, manual, skipped, conflict)",
					},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.ReviewList,
			},
			{
				Name:      "show",
				Usage:     "Show a result and its candidates",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action:    r.ReviewShow,
			},
			{
				Name:      "accept",
				Usage:     "Accept the best candidate",
				ArgsUsage: "ID",
				Action:    r.ReviewAccept,
			},
			{
				Name:      "reject",
				Usage:     "Skip the entry",
				ArgsUsage: "ID",
				Action:    r.ReviewReject,
			},
			{
				Name:      "select",
				Usage:     "Choose an alternative candidate by its position",
				ArgsUsage: "ID INDEX",
				Action:    r.ReviewSelect,
			},
			{
				Name:      "reset",
				Usage:     "Return a reviewed result to pending",
				ArgsUsage: "ID",
				Action:    r.ReviewReset,
			},
		},
	}
}

// exportCommand writes results to disk
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export match results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (csv, json, markdown)",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (defaults to mangax_results.<ext>)",
			},
		},
		Action: r.Export,
	}
}

// cacheCommand handles the search result cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and clear the search result cache",
		Commands: []*cli.Command{
			{
				Name:      "clear",
				Usage:     "Clear cached searches (all of them when no titles are given)",
				ArgsUsage: "[TITLE...]",
				Action:    r.CacheClear,
			},
			{
				Name:   "stats",
				Usage:  "Show cache, queue and result counts",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.CacheStats,
			},
		},
	}
}

// serveCommand runs the HTTP and WebSocket server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the matching engine over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (overrides server.host)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides server.port)"},
		},
		Action: r.Serve,
	}
}
