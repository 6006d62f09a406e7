package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize canonicalizes a title for comparison.
//
// The input is compatibility-composed (so full-width and ligature forms compare equal to their
// plain counterparts), case-folded unless caseSensitive is set, every rune that is not a letter,
// combining mark, digit or whitespace becomes a space, and whitespace runs collapse to a single space.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string, caseSensitive bool) string {
	s = norm.NFKC.String(s)
	if !caseSensitive {
		s = norm.NFKC.String(folder.String(s))
	}

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)

	return strings.Join(strings.Fields(mapped), " ")
}

// runeLen counts runes, which is the length unit used for every title comparison.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 || runeLen(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ContainsAllWords reports whether every word of query appears as a word of title.
// Both arguments are normalized first; an empty query never matches.
func ContainsAllWords(query, title string) bool {
	qWords := strings.Fields(Normalize(query, false))
	if len(qWords) == 0 {
		return false
	}

	tWords := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(title, false)) {
		tWords[w] = struct{}{}
	}

	for _, w := range qWords {
		if _, ok := tWords[w]; !ok {
			return false
		}
	}
	return true
}
