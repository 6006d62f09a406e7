package models

import "fmt"

// MatchStatus is the review state of a [MatchResult].
type MatchStatus string

const (
	StatusPending  MatchStatus = "pending"
	StatusMatched  MatchStatus = "matched"
	StatusManual   MatchStatus = "manual"
	StatusSkipped  MatchStatus = "skipped"
	StatusConflict MatchStatus = "conflict"
)

// Actor identifies who drives a transition.
type Actor int

const (
	// ActorSystem is automatic batch resolution.
	ActorSystem Actor = iota
	// ActorUser is an explicit review action.
	ActorUser
)

func (a Actor) String() string {
	if a == ActorUser {
		return "user"
	}
	return "system"
}

// ParseStatus validates s as a [MatchStatus].
func ParseStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case StatusPending, StatusMatched, StatusManual, StatusSkipped, StatusConflict:
		return st, nil
	default:
		return "", fmt.Errorf("unknown match status %q", s)
	}
}

// Reviewed reports whether the status records a decision that a re-run must not overwrite.
func (s MatchStatus) Reviewed() bool {
	return s != StatusPending
}

// CanTransition reports whether actor may move a result from one status to another.
//
//	pending             -> matched | manual | skipped   (system or user)
//	pending             -> conflict                     (system only)
//	matched|manual|skipped -> pending                   (user reset)
//	conflict            -> matched | manual | skipped   (user only)
func CanTransition(from, to MatchStatus, actor Actor) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusMatched, StatusManual, StatusSkipped:
			return true
		case StatusConflict:
			return actor == ActorSystem
		}
	case StatusMatched, StatusManual, StatusSkipped:
		return to == StatusPending && actor == ActorUser
	case StatusConflict:
		switch to {
		case StatusMatched, StatusManual, StatusSkipped:
			return actor == ActorUser
		}
	}
	return false
}
