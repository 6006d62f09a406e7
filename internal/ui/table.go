package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// TitleFunc picks the display title of a catalog record.
type TitleFunc func(models.CandidateRecord) string

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// ResultsTable renders one row per result: source, status, selected or best candidate.
func ResultsTable(results []models.MatchResult, title TitleFunc) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		var target, id, conf string
		switch best, ok := r.Best(); {
		case r.Selected != nil:
			target, id = title(*r.Selected), strconv.Itoa(r.Selected.ExternalID)
			if ok && best.Candidate.ExternalID == r.Selected.ExternalID {
				conf = strconv.Itoa(best.Confidence)
			}
		case ok:
			target, id, conf = Help(title(best.Candidate)), strconv.Itoa(best.Candidate.ExternalID), strconv.Itoa(best.Confidence)
		}

		rows = append(rows, []string{
			r.Source.ID,
			r.Source.Title,
			Status(r.Status),
			id,
			target,
			conf,
			strconv.Itoa(len(r.Candidates)),
		})
	}

	return renderTable(
		[]string{"ID", "TITLE", "STATUS", "TARGET ID", "TARGET", "CONF", "CANDIDATES"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
	)
}

// CandidatesTable renders the ranked candidates of one result with their index for selection.
func CandidatesTable(cands []models.ScoredCandidate, title TitleFunc) string {
	rows := make([][]string, 0, len(cands))
	for i, c := range cands {
		flags := make([]string, 0, 2)
		if c.IsExactMatch {
			flags = append(flags, "exact")
		}
		if c.Fallback {
			flags = append(flags, "fallback")
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			strconv.Itoa(c.Candidate.ExternalID),
			title(c.Candidate),
			c.Candidate.Format,
			strconv.Itoa(c.Confidence),
			string(c.MatchedField),
			strings.Join(flags, ","),
		})
	}

	return renderTable(
		[]string{"#", "ID", "TITLE", "FORMAT", "CONF", "FIELD", "FLAGS"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// RunsTable renders the batch run log.
func RunsTable(runs []*models.BatchRun) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		state := Success("done")
		switch {
		case !r.Finished():
			state = Warning("running")
		case r.ErrorMessage != "":
			state = Error("failed")
		case r.Cancelled:
			state = Warning("cancelled")
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Sequence),
			string(r.Mode),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d/%d", r.Processed, r.Total),
			strconv.Itoa(r.Matched),
			strconv.Itoa(r.Conflicts),
			strconv.Itoa(r.Pending),
			state,
		})
	}

	return renderTable(
		[]string{"#", "MODE", "STARTED", "PROCESSED", "MATCHED", "CONFLICTS", "PENDING", "STATE"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
