package ui

import (
	"fmt"

	"github.com/desertthunder/mangax/internal/models"
)

// ProgressLine formats one batch progress message as "[step/total] text".
func ProgressLine(step, total int, message string) string {
	return fmt.Sprintf("%s %s", Help(fmt.Sprintf("[%d/%d]", step, total)), message)
}

// ResultLine formats a resolved entry for streaming output.
func ResultLine(step, total int, r models.MatchResult, title TitleFunc) string {
	line := fmt.Sprintf("%s  %s", r.Source.Title, Status(r.Status))
	if r.Selected != nil {
		line += " → " + title(*r.Selected)
	}
	return ProgressLine(step, total, line)
}

// Summary formats the per-status counts of results.
func Summary(results []models.MatchResult, pending int) string {
	counts := make(map[models.MatchStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return fmt.Sprintf("%s %d  %s %d  %s %d  %s %d  %s %d",
		Success("matched"), counts[models.StatusMatched]+counts[models.StatusManual],
		Warning("conflict"), counts[models.StatusConflict],
		Help("skipped"), counts[models.StatusSkipped],
		"pending", counts[models.StatusPending],
		"unprocessed", pending,
	)
}
