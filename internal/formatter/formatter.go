// package formatter reads reading-list exports and writes match results to CSV, JSON or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/samber/lo"
)

// Format is an export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts csv, json, markdown and md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (use csv, json or markdown)", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// alternativeSep separates alternative titles inside a single CSV cell.
const alternativeSep = ";"

// importColumns maps accepted header names to [models.SourceEntry] fields.
var importColumns = map[string]string{
	"id":                 "id",
	"title":              "title",
	"alternative_titles": "alternative_titles",
	"synonyms":           "alternative_titles",
	"status":             "status",
	"chapters_read":      "chapters_read",
	"volumes_read":       "volumes_read",
	"score":              "score",
	"known_external_id":  "known_external_id",
	"anilist_id":         "known_external_id",
}

// ImportCSV reads source entries from a CSV export with a header row.
//
// Only the title column is required. Rows with a blank title are skipped; a missing ID is replaced
// by the row number.
func ImportCSV(r io.Reader) ([]models.SourceEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV", shared.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", shared.ErrInvalidInput, err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := importColumns[key]; ok {
			cols[field] = i
		}
	}
	if _, ok := cols["title"]; !ok {
		return nil, fmt.Errorf("%w: CSV has no title column", shared.ErrInvalidInput)
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []models.SourceEntry
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, line, err)
		}

		title := cell(row, "title")
		if title == "" {
			continue
		}

		e := models.SourceEntry{
			ID:     cell(row, "id"),
			Title:  title,
			Status: cell(row, "status"),
		}
		if e.ID == "" {
			e.ID = strconv.Itoa(line - 1)
		}
		if alt := cell(row, "alternative_titles"); alt != "" {
			e.AlternativeTitles = lo.Compact(lo.Map(strings.Split(alt, alternativeSep), func(s string, _ int) string {
				return strings.TrimSpace(s)
			}))
		}

		if e.ChaptersRead, err = parseInt(cell(row, "chapters_read")); err != nil {
			return nil, fmt.Errorf("%w: line %d: chapters_read: %v", shared.ErrInvalidInput, line, err)
		}
		if e.VolumesRead, err = parseInt(cell(row, "volumes_read")); err != nil {
			return nil, fmt.Errorf("%w: line %d: volumes_read: %v", shared.ErrInvalidInput, line, err)
		}
		if e.KnownExternalID, err = parseInt(cell(row, "known_external_id")); err != nil {
			return nil, fmt.Errorf("%w: line %d: known_external_id: %v", shared.ErrInvalidInput, line, err)
		}
		if s := cell(row, "score"); s != "" {
			if e.Score, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: score: %v", shared.ErrInvalidInput, line, err)
			}
		}

		entries = append(entries, e)
	}
	return entries, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ImportJSON reads source entries from a JSON array.
func ImportJSON(r io.Reader) ([]models.SourceEntry, error) {
	var entries []models.SourceEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: failed to decode entries: %v", shared.ErrInvalidInput, err)
	}
	return lo.Filter(entries, func(e models.SourceEntry, _ int) bool {
		return strings.TrimSpace(e.Title) != ""
	}), nil
}

// ReadEntries loads a source export, choosing the parser from the file extension.
func ReadEntries(path string) ([]models.SourceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ImportJSON(f)
	}
	return ImportCSV(f)
}

// Exporter renders results using the configured title preference.
type Exporter struct {
	Preferred models.TitleField
}

func (x Exporter) targetTitle(r models.MatchResult) string {
	if r.Selected == nil {
		return ""
	}
	return matching.PreferredTitle(*r.Selected, x.Preferred)
}

// ExportToCSV converts results to CSV with columns: Source ID, Source Title, Status, Target ID,
// Target Title, Confidence, Matched Field, Chapters Read, Volumes Read, Score
func (x Exporter) ExportToCSV(results []models.MatchResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Source ID", "Source Title", "Status", "Target ID", "Target Title", "Confidence", "Matched Field", "Chapters Read", "Volumes Read", "Score"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range results {
		var targetID, confidence, field string
		if r.Selected != nil {
			targetID = strconv.Itoa(r.Selected.ExternalID)
			if c, ok := selectedCandidate(r); ok {
				confidence = strconv.Itoa(c.Confidence)
				field = string(c.MatchedField)
			}
		}

		record := []string{
			r.Source.ID,
			r.Source.Title,
			string(r.Status),
			targetID,
			x.targetTitle(r),
			confidence,
			field,
			strconv.Itoa(r.Source.ChaptersRead),
			strconv.Itoa(r.Source.VolumesRead),
			strconv.FormatFloat(r.Source.Score, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts results to indented JSON.
func (x Exporter) ExportToJSON(results []models.MatchResult) ([]byte, error) {
	if results == nil {
		results = []models.MatchResult{}
	}
	return shared.MarshalJSON(results, true)
}

var statusSections = []struct {
	status  models.MatchStatus
	heading string
}{
	{models.StatusMatched, "Matched"},
	{models.StatusManual, "Manual"},
	{models.StatusConflict, "Needs Review"},
	{models.StatusPending, "Pending"},
	{models.StatusSkipped, "Skipped"},
}

// ExportToMarkdown renders results as a Markdown report grouped by status.
func (x Exporter) ExportToMarkdown(results []models.MatchResult) ([]byte, error) {
	var buf bytes.Buffer

	grouped := lo.GroupBy(results, func(r models.MatchResult) models.MatchStatus { return r.Status })

	buf.WriteString("# Migration Results\n\n")
	fmt.Fprintf(&buf, "**Entries**: %d\n", len(results))
	for _, sec := range statusSections {
		fmt.Fprintf(&buf, "**%s**: %d\n", sec.heading, len(grouped[sec.status]))
	}

	for _, sec := range statusSections {
		rs := grouped[sec.status]
		if len(rs) == 0 {
			continue
		}

		fmt.Fprintf(&buf, "\n## %s\n\n", sec.heading)
		for i, r := range rs {
			switch {
			case r.Selected != nil:
				conf := ""
				if c, ok := selectedCandidate(r); ok {
					conf = fmt.Sprintf(" [%d%%]", c.Confidence)
				}
				fmt.Fprintf(&buf, "%d. %s → %s (#%d)%s\n", i+1, r.Source.Title, x.targetTitle(r), r.Selected.ExternalID, conf)
			case len(r.Candidates) > 0:
				fmt.Fprintf(&buf, "%d. %s (%d candidates)\n", i+1, r.Source.Title, len(r.Candidates))
			default:
				fmt.Fprintf(&buf, "%d. %s\n", i+1, r.Source.Title)
			}
		}
	}

	return buf.Bytes(), nil
}

// Export renders results in format f.
func (x Exporter) Export(results []models.MatchResult, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return x.ExportToCSV(results)
	case FormatJSON:
		return x.ExportToJSON(results)
	case FormatMarkdown:
		return x.ExportToMarkdown(results)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// WriteExport writes results to path in format f and returns the path written.
//
// Defaults to mangax_results.{ext} in the working directory.
func (x Exporter) WriteExport(results []models.MatchResult, f Format, path string) (string, error) {
	if path == "" {
		path = "mangax_results." + f.Extension()
	}

	data, err := x.Export(results, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// selectedCandidate finds the scored candidate matching the selected record.
func selectedCandidate(r models.MatchResult) (models.ScoredCandidate, bool) {
	if r.Selected == nil {
		return models.ScoredCandidate{}, false
	}
	return lo.Find(r.Candidates, func(c models.ScoredCandidate) bool {
		return c.Candidate.ExternalID == r.Selected.ExternalID
	})
}
