package matching

import (
	"math"
	"strings"

	"github.com/desertthunder/mangax/internal/models"
)

const (
	// ExactThreshold is the confidence at or above which a candidate counts as an exact match.
	ExactThreshold = 95
	// MaxConfidence caps every computed confidence.
	MaxConfidence = 100
)

// Options tunes the scorer.
type Options struct {
	MinTitleLength   int               // runes, after normalization
	Precision        int               // decimal places kept by Similarity
	CaseSensitive    bool              // skip case folding in Normalize
	PreferredTitle   models.TitleField // field that earns PreferenceWeight
	PreferenceWeight float64           // multiplier for a win on PreferredTitle
}

// DefaultOptions returns the scoring defaults.
func DefaultOptions() Options {
	return Options{
		MinTitleLength:   3,
		Precision:        4,
		PreferredTitle:   models.FieldPrimary,
		PreferenceWeight: 1.05,
	}
}

// Scorer computes [models.ScoredCandidate] values. It is stateless and safe for concurrent use.
type Scorer struct {
	opts Options
}

// NewScorer creates a Scorer, replacing non-positive precision and weight with defaults.
func NewScorer(opts Options) *Scorer {
	def := DefaultOptions()
	if opts.Precision <= 0 {
		opts.Precision = def.Precision
	}
	if opts.PreferenceWeight <= 0 {
		opts.PreferenceWeight = def.PreferenceWeight
	}
	if opts.MinTitleLength < 0 {
		opts.MinTitleLength = 0
	}
	return &Scorer{opts: opts}
}

// Options returns the effective options.
func (s *Scorer) Options() Options {
	return s.opts
}

type fieldTitle struct {
	field models.TitleField
	title string
}

// candidateTitles lists the non-empty titles of c in comparison order.
func candidateTitles(c models.CandidateRecord) []fieldTitle {
	out := make([]fieldTitle, 0, 3+len(c.Synonyms))
	add := func(f models.TitleField, t string) {
		if strings.TrimSpace(t) != "" {
			out = append(out, fieldTitle{f, t})
		}
	}

	add(models.FieldPrimary, c.Titles.Primary)
	add(models.FieldAlternate, c.Titles.Alternate)
	add(models.FieldNative, c.Titles.Native)
	for _, syn := range c.Synonyms {
		add(models.FieldSynonym, syn)
	}
	return out
}

// Score compares every title of src against every title of cand.
//
// The highest pairwise similarity wins; the first field reaching it is reported. Any exact
// normalized equality returns 100 immediately. Pairs where either side normalizes to fewer than
// MinTitleLength runes are skipped, so an entry whose titles are all too short scores 0.
func (s *Scorer) Score(src models.SourceEntry, cand models.CandidateRecord) models.ScoredCandidate {
	out := models.ScoredCandidate{Candidate: cand}
	fields := candidateTitles(cand)

	normFields := make([]string, len(fields))
	for i, f := range fields {
		normFields[i] = Normalize(f.title, s.opts.CaseSensitive)
	}

	var top float64
	for _, title := range src.Titles() {
		ns := Normalize(title, s.opts.CaseSensitive)
		if runeLen(ns) < s.opts.MinTitleLength {
			continue
		}

		for i, nc := range normFields {
			if runeLen(nc) < s.opts.MinTitleLength {
				continue
			}

			if ns == nc {
				out.Confidence = MaxConfidence
				out.MatchedField = fields[i].field
				out.IsExactMatch = true
				return out
			}

			if sim := s.similarityNormalized(ns, nc); sim > top {
				top = sim
				out.MatchedField = fields[i].field
			}
		}
	}

	weight := 1.0
	if out.MatchedField != models.FieldNone && out.MatchedField == s.opts.PreferredTitle {
		weight = s.opts.PreferenceWeight
	}

	out.Confidence = min(MaxConfidence, int(math.Round(top*100*weight)))
	out.IsExactMatch = out.Confidence >= ExactThreshold
	return out
}

// BestTitleSimilarity returns the highest similarity between query and any title of cand.
func (s *Scorer) BestTitleSimilarity(query string, cand models.CandidateRecord) float64 {
	nq := Normalize(query, s.opts.CaseSensitive)

	var best float64
	for _, f := range candidateTitles(cand) {
		if sim := s.similarityNormalized(nq, Normalize(f.title, s.opts.CaseSensitive)); sim > best {
			best = sim
		}
	}
	return best
}
