// Package models defines the domain entities of the reading-list migration engine.
//
// The package contains three groups of types:
//
// 1. Imported and fetched records (immutable snapshots)
//   - [SourceEntry] : one reading-list row from the source export
//   - [CandidateRecord] : a target catalog entry returned by search or ID fetch
//
// 2. Derived matching data
//   - [ScoredCandidate] : a candidate with its confidence and winning title field
//   - [MatchResult] : the resolution state of one source entry
//   - [CacheEntry] : a cached list of candidates for a normalized title
//
// 3. The match state machine
//   - [MatchStatus] : pending, matched, manual, skipped, conflict
//   - [CanTransition] : the transition table, split by [Actor] (system or user)
package models
