package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mangax/internal/formatter"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/tasks"
	"github.com/desertthunder/mangax/internal/ui"
	"github.com/urfave/cli/v3"
)

func searchOptions(cmd *cli.Command, cfg *shared.Config) tasks.SearchOptions {
	return tasks.SearchOptions{
		ExactOnly:   cmd.Bool("exact-only") || cfg.Matching.ExactOnly,
		BypassCache: cmd.Bool("bypass-cache"),
	}
}

// MatchRun matches every entry of a reading list export from scratch.
func (r *Runner) MatchRun(ctx context.Context, cmd *cli.Command) error {
	entries, err := formatter.ReadEntries(cmd.String("input"))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s contains no entries", shared.ErrInvalidInput, cmd.String("input"))
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Info("starting batch", "entries", len(entries), "catalog_calls_per_minute", r.config.Limiter.RequestsPerMinute)

	events, err := s.svc.StartBatch(ctx, entries, searchOptions(cmd, r.config))
	if err != nil {
		return err
	}
	return r.streamBatch(s, events, cmd.Bool("json"))
}

// MatchResume re-runs the previous batch, or merges it with a new export, keeping reviewed results.
func (r *Runner) MatchResume(ctx context.Context, cmd *cli.Command) error {
	var entries []models.SourceEntry
	if input := cmd.String("input"); input != "" {
		var err error
		if entries, err = formatter.ReadEntries(input); err != nil {
			return err
		}
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(entries) == 0 && len(s.svc.Results()) == 0 && len(s.svc.Pending()) == 0 {
		return fmt.Errorf("%w: nothing to resume, run 'mangax match run' first", shared.ErrNotFound)
	}

	events, err := s.svc.Resume(ctx, entries, searchOptions(cmd, r.config))
	if err != nil {
		return err
	}
	return r.streamBatch(s, events, cmd.Bool("json"))
}

// streamBatch prints results as they resolve, then the summary and results table.
func (r *Runner) streamBatch(s *session, events <-chan tasks.Event, asJSON bool) error {
	var done tasks.Event
	for ev := range events {
		switch ev.Kind {
		case tasks.EventResult:
			if !asJSON {
				r.writePlain("%s\n", ui.ResultLine(ev.Progress.Step, ev.Progress.Total, *ev.Result, s.svc.PreferredTitle))
			}
		case tasks.EventProgress:
			r.logger.Debug(ev.Progress.Message, "phase", ev.Progress.Phase, "step", ev.Progress.Step, "total", ev.Progress.Total)
		case tasks.EventDone:
			done = ev
		}
	}

	if done.Outcome == nil {
		return done.Err
	}
	out := done.Outcome

	if asJSON {
		if err := r.writeJSON(out, true); err != nil {
			return err
		}
		return done.Err
	}

	r.writePlainln("%s", ui.ResultsTable(out.Results, s.svc.PreferredTitle))
	r.writePlain("%s\n", ui.Summary(out.Results, len(out.Pending)))
	r.writePlain("fetched by id: %d  cache hits: %d  searched: %d  preserved: %d\n",
		out.Fetched, out.CacheHits, out.Searched, out.Preserved)

	switch {
	case done.Err != nil:
		r.writePlainln("%s %v", ui.Error("Batch stopped:"), done.Err)
		r.writePlain("%s\n", ui.Help("Run 'mangax match resume' to continue with the remaining entries."))
	case out.Cancelled:
		r.writePlainln("%s %d entries left unprocessed", ui.Warning("Cancelled:"), len(out.Pending))
		r.writePlain("%s\n", ui.Help("Run 'mangax match resume' to continue."))
	}
	return done.Err
}

// MatchSearch runs one title through the search pipeline and prints the ranked candidates.
func (r *Runner) MatchSearch(ctx context.Context, cmd *cli.Command) error {
	title := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if title == "" {
		return fmt.Errorf("%w: TITLE", shared.ErrMissingArgument)
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	cands, err := s.svc.Search(ctx, title, searchOptions(cmd, r.config))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(cands, true)
	}
	if len(cands) == 0 {
		return r.writePlain("No candidates found for %q\n", title)
	}
	r.writePlain("%s\n", ui.Title(fmt.Sprintf("Candidates for %q", title)))
	return r.writePlain("%s\n", ui.CandidatesTable(cands, s.svc.PreferredTitle))
}

// MatchRuns lists the batch run log.
func (r *Runner) MatchRuns(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.runs.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		return r.writePlain("No batch runs recorded\n")
	}
	return r.writePlain("%s\n", ui.RunsTable(runs))
}
