package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/mangax/internal/formatter"
	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/ui"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

func resultID(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", fmt.Errorf("%w: ID", shared.ErrMissingArgument)
	}
	return id, nil
}

// ReviewList prints the stored results, optionally filtered by status.
func (r *Runner) ReviewList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	results := s.svc.Results()
	if raw := cmd.String("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		results = lo.Filter(results, func(res models.MatchResult, _ int) bool { return res.Status == status })
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, true)
	}
	if len(results) == 0 {
		return r.writePlain("No results\n")
	}
	r.writePlain("%s\n", ui.ResultsTable(results, s.svc.PreferredTitle))
	return r.writePlain("%s\n", ui.Summary(s.svc.Results(), len(s.svc.Pending())))
}

// ReviewShow prints one result with all of its candidates.
func (r *Runner) ReviewShow(ctx context.Context, cmd *cli.Command) error {
	id, err := resultID(cmd)
	if err != nil {
		return err
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.svc.Result(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	r.writePlain("%s  %s\n", ui.Title(res.Source.Title), ui.Status(res.Status))
	if len(res.Source.AlternativeTitles) > 0 {
		r.writePlain("%s %v\n", ui.Help("also known as"), res.Source.AlternativeTitles)
	}
	if res.Selected != nil {
		r.writePlain("%s %s (#%d)\n", ui.Help("selected"), s.svc.PreferredTitle(*res.Selected), res.Selected.ExternalID)
	}
	if len(res.Candidates) == 0 {
		return r.writePlainln("No candidates")
	}
	return r.writePlainln("%s", ui.CandidatesTable(res.Candidates, s.svc.PreferredTitle))
}

// review opens a session, applies action to the result named by the first argument and prints the
// new status.
func (r *Runner) review(cmd *cli.Command, action func(s *session, id string) (models.MatchResult, error)) error {
	id, err := resultID(cmd)
	if err != nil {
		return err
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := action(s, id)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%s %s  %s", ui.Success("✓"), res.Source.Title, ui.Status(res.Status))
	if res.Selected != nil {
		line += " → " + s.svc.PreferredTitle(*res.Selected)
	}
	return r.writePlain("%s\n", line)
}

// ReviewAccept selects the best candidate.
func (r *Runner) ReviewAccept(ctx context.Context, cmd *cli.Command) error {
	return r.review(cmd, func(s *session, id string) (models.MatchResult, error) { return s.svc.Accept(id) })
}

// ReviewReject skips the entry.
func (r *Runner) ReviewReject(ctx context.Context, cmd *cli.Command) error {
	return r.review(cmd, func(s *session, id string) (models.MatchResult, error) { return s.svc.Reject(id) })
}

// ReviewReset returns the entry to pending.
func (r *Runner) ReviewReset(ctx context.Context, cmd *cli.Command) error {
	return r.review(cmd, func(s *session, id string) (models.MatchResult, error) { return s.svc.ResetToPending(id) })
}

// ReviewSelect picks the candidate at INDEX, as numbered by 'review show'.
func (r *Runner) ReviewSelect(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.Args().Get(1)
	if raw == "" {
		return fmt.Errorf("%w: INDEX", shared.ErrMissingArgument)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: INDEX must be a non-negative number, got %q", shared.ErrInvalidArgument, raw)
	}

	return r.review(cmd, func(s *session, id string) (models.MatchResult, error) {
		return s.svc.SelectAlternative(id, n)
	})
}

// Export writes the stored results in the requested format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	results := s.svc.Results()
	if len(results) == 0 {
		return fmt.Errorf("%w: no results to export", shared.ErrNotFound)
	}

	pref, err := matching.ParseTitleField(r.config.Matching.PreferredTitle)
	if err != nil {
		return err
	}

	path, err := formatter.Exporter{Preferred: pref}.WriteExport(results, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("results exported", "path", path, "format", format, "results", len(results))
	return r.writePlain("%s Exported %d results to %s\n", ui.Success("✓"), len(results), path)
}
