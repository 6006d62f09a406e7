package tasks

import (
	"fmt"

	"github.com/desertthunder/mangax/internal/models"
)

// ProgressUpdate represents a progress event during a batch.
//
// Step is the number of entries resolved so far; it strictly increases across the updates of one
// batch. Data carries the resolved [models.MatchResult] when the update reports a single entry.
type ProgressUpdate struct {
	Phase   Phase  `json:"phase"`          // Operation phase
	Step    int    `json:"step"`           // Entries resolved so far
	Total   int    `json:"total"`          // Entries in the batch
	Title   string `json:"title"`          // Title of the entry just resolved
	Message string `json:"message"`        // Human-readable message for display
	Data    any    `json:"data,omitempty"` // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhasePreserved Phase = iota
	PhaseFetchIDs
	PhaseCache
	PhaseSearch
)

func (p Phase) String() string {
	switch p {
	case PhasePreserved:
		return "preserved"
	case PhaseFetchIDs:
		return "fetch_ids"
	case PhaseCache:
		return "cache"
	case PhaseSearch:
		return "search"
	default:
		return ""
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func preservedUpdate(step, total, preserved int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhasePreserved,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Kept %d reviewed results from the previous run", preserved),
	}
}

func resolvedUpdate(phase Phase, step, total int, res models.MatchResult) ProgressUpdate {
	mark := "✓"
	switch res.Status {
	case models.StatusConflict:
		mark = "?"
	case models.StatusPending:
		mark = "…"
	}

	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Title:   res.Source.Title,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, res.Source.Title, res.Status),
		Data:    res,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
