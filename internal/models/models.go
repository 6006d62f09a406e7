package models

import (
	"strings"
	"time"
)

// SourceEntry is a reading-list row loaded from the source export. It is never mutated after import.
type SourceEntry struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	AlternativeTitles []string `json:"alternative_titles,omitempty"`
	Status            string   `json:"status,omitempty"`
	ChaptersRead      int      `json:"chapters_read"`
	VolumesRead       int      `json:"volumes_read"`
	Score             float64  `json:"score"`
	KnownExternalID   int      `json:"known_external_id,omitempty"` // 0 when unknown
}

// HasKnownID reports whether the entry carries a target catalog ID from the import.
func (e SourceEntry) HasKnownID() bool {
	return e.KnownExternalID > 0
}

// Titles returns the primary title followed by the alternative titles, skipping blanks.
func (e SourceEntry) Titles() []string {
	titles := make([]string, 0, 1+len(e.AlternativeTitles))
	for _, t := range append([]string{e.Title}, e.AlternativeTitles...) {
		if strings.TrimSpace(t) != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// TitleSet holds the title variants of a catalog record.
type TitleSet struct {
	Primary   string `json:"primary"`
	Alternate string `json:"alternate,omitempty"`
	Native    string `json:"native,omitempty"`
}

// CandidateRecord is a snapshot of a target catalog entry.
type CandidateRecord struct {
	ExternalID   int      `json:"external_id"`
	Titles       TitleSet `json:"titles"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Format       string   `json:"format,omitempty"`
	Status       string   `json:"status,omitempty"`
	ChapterCount int      `json:"chapter_count,omitempty"` // 0 when unknown
}

// TitleField names the field of a candidate that produced a score.
type TitleField string

const (
	FieldNone      TitleField = ""
	FieldPrimary   TitleField = "primary"
	FieldAlternate TitleField = "alternate"
	FieldNative    TitleField = "native"
	FieldSynonym   TitleField = "synonym"
	FieldID        TitleField = "id"
)

// ScoredCandidate is a candidate with the confidence computed against one source entry.
type ScoredCandidate struct {
	Candidate    CandidateRecord `json:"candidate"`
	Confidence   int             `json:"confidence"` // 0..100
	MatchedField TitleField      `json:"matched_field,omitempty"`
	IsExactMatch bool            `json:"is_exact_match"`
	Fallback     bool            `json:"fallback,omitempty"` // kept only so the entry has something to review
}

// MatchResult is the resolution state of a single source entry.
type MatchResult struct {
	Source      SourceEntry       `json:"source"`
	Candidates  []ScoredCandidate `json:"candidates"`
	Selected    *CandidateRecord  `json:"selected,omitempty"`
	Status      MatchStatus       `json:"status"`
	LastUpdated time.Time         `json:"last_updated"`
}

// NewMatchResult creates a pending result for src.
func NewMatchResult(src SourceEntry, candidates []ScoredCandidate, now time.Time) MatchResult {
	if candidates == nil {
		candidates = []ScoredCandidate{}
	}
	return MatchResult{
		Source:      src,
		Candidates:  candidates,
		Status:      StatusPending,
		LastUpdated: now,
	}
}

// Best returns the highest ranked candidate, if any.
func (r MatchResult) Best() (ScoredCandidate, bool) {
	if len(r.Candidates) == 0 {
		return ScoredCandidate{}, false
	}
	return r.Candidates[0], true
}

// TitleKey is the case-insensitive key used to pair results across runs.
func (r MatchResult) TitleKey() string {
	return TitleKey(r.Source.Title)
}

// ExternalID returns the catalog ID that identifies this result across runs: the selected record,
// then the ID known from the import. Zero when neither exists.
func (r MatchResult) ExternalID() int {
	if r.Selected != nil && r.Selected.ExternalID > 0 {
		return r.Selected.ExternalID
	}
	return r.Source.KnownExternalID
}

// TitleKey lower-cases and trims a title for case-insensitive pairing.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// CacheEntry is a cached candidate list. It is replaced wholesale, never partially updated.
type CacheEntry struct {
	Key        string            `json:"key"`
	Candidates []CandidateRecord `json:"candidates"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Valid reports whether the entry is younger than ttl at now.
func (c CacheEntry) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.Timestamp) < ttl
}

// PendingSet holds the source entries not yet represented in the last persisted batch.
type PendingSet []SourceEntry

// Without returns the entries of p whose titles are not present in results.
func (p PendingSet) Without(results []MatchResult) PendingSet {
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.TitleKey()] = struct{}{}
	}

	out := make(PendingSet, 0, len(p))
	for _, e := range p {
		if _, ok := seen[TitleKey(e.Title)]; !ok {
			out = append(out, e)
		}
	}
	return out
}
