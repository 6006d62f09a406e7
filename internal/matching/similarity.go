package matching

import (
	"math"
	"strings"

	"github.com/hbollon/go-edlib"
)

const (
	// lengthGapLimit is the relative length difference above which similarity is capped.
	lengthGapLimit = 0.5
	// lengthGapCeiling is the cap applied to strings of wildly different lengths.
	lengthGapCeiling = 0.2
)

// Similarity scores two titles in [0, 1] with the scorer's case and precision settings.
//
// Steps, short-circuiting in order: equal after normalization is 1; either side shorter than two
// runes is 0; containment of one in the other is min(len)/max(len); otherwise the higher of the
// bigram Dice coefficient and the Levenshtein ratio, capped at 0.2 when the lengths differ by more
// than half, rounded to the configured precision.
func (s *Scorer) Similarity(a, b string) float64 {
	a = Normalize(a, s.opts.CaseSensitive)
	b = Normalize(b, s.opts.CaseSensitive)
	return s.similarityNormalized(a, b)
}

func (s *Scorer) similarityNormalized(a, b string) float64 {
	if a == b && a != "" {
		return 1
	}

	la, lb := runeLen(a), runeLen(b)
	if la < 2 || lb < 2 {
		return 0
	}

	shorter, longer := float64(min(la, lb)), float64(max(la, lb))

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return s.round(shorter / longer)
	}

	dice := float64(edlib.SorensenDiceCoefficient(a, b, 2))
	ratio := 1 - float64(edlib.LevenshteinDistance(a, b))/longer
	score := math.Max(dice, ratio)

	if (longer-shorter)/longer > lengthGapLimit {
		score = math.Min(score, lengthGapCeiling)
	}

	return s.round(math.Max(0, math.Min(1, score)))
}

func (s *Scorer) round(v float64) float64 {
	p := math.Pow(10, float64(s.opts.Precision))
	return math.Round(v*p) / p
}

// Similarity scores two titles with the default options.
func Similarity(a, b string) float64 {
	return NewScorer(DefaultOptions()).Similarity(a, b)
}
