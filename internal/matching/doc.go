// Package matching scores how well a catalog record matches a reading-list title.
//
// [Normalize] canonicalizes titles, [Scorer.Similarity] blends containment, bigram Dice and
// Levenshtein ratios into a 0..1 score, and [Scorer.Score] evaluates every title field of a
// candidate against every title of a source entry to produce a 0..100 confidence.
package matching
