package tasks

import (
	"fmt"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
)

// Accept selects the best candidate of a result.
func (s *Service) Accept(id string) (models.MatchResult, error) {
	return s.review(id, models.StatusMatched, func(r *models.MatchResult) error {
		best, ok := r.Best()
		if !ok {
			return shared.ErrNoCandidates
		}
		selected := best.Candidate
		r.Selected = &selected
		return nil
	})
}

// Reject skips a result, leaving nothing selected.
func (s *Service) Reject(id string) (models.MatchResult, error) {
	return s.review(id, models.StatusSkipped, func(r *models.MatchResult) error {
		r.Selected = nil
		return nil
	})
}

// SelectAlternative selects the candidate at index as a manual match.
func (s *Service) SelectAlternative(id string, index int) (models.MatchResult, error) {
	return s.review(id, models.StatusManual, func(r *models.MatchResult) error {
		if index < 0 || index >= len(r.Candidates) {
			return fmt.Errorf("%w: candidate index %d out of range [0, %d)", shared.ErrInvalidArgument, index, len(r.Candidates))
		}
		selected := r.Candidates[index].Candidate
		r.Selected = &selected
		return nil
	})
}

// ResetToPending undoes a review decision.
func (s *Service) ResetToPending(id string) (models.MatchResult, error) {
	return s.review(id, models.StatusPending, func(r *models.MatchResult) error {
		r.Selected = nil
		return nil
	})
}

// Result looks up a result by source ID or title.
func (s *Service) Result(id string) (models.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.MatchResult{}, fmt.Errorf("%w: result %q", shared.ErrNotFound, id)
	}
	return s.results[i], nil
}

// review applies a user transition to one result and persists the new state. Results cannot be
// reviewed while a batch is running.
func (s *Service) review(id string, to models.MatchStatus, apply func(*models.MatchResult) error) (models.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return models.MatchResult{}, shared.ErrBatchRunning
	}

	i := s.indexOf(id)
	if i < 0 {
		return models.MatchResult{}, fmt.Errorf("%w: result %q", shared.ErrNotFound, id)
	}

	r := s.results[i]
	if !models.CanTransition(r.Status, to, models.ActorUser) {
		return r, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, r.Status, to)
	}
	if err := apply(&r); err != nil {
		return s.results[i], err
	}

	r.Status = to
	r.LastUpdated = s.now()
	s.results[i] = r

	if err := s.state.Save(s.results, s.pending); err != nil {
		s.logger.Warn("could not persist review", "title", r.Source.Title, "err", err)
	}
	s.logger.Debug("result reviewed", "title", r.Source.Title, "status", to)
	return r, nil
}

// indexOf finds a result by source ID, then by case-insensitive title. Callers hold s.mu.
func (s *Service) indexOf(id string) int {
	for i, r := range s.results {
		if id != "" && r.Source.ID == id {
			return i
		}
	}
	key := models.TitleKey(id)
	for i, r := range s.results {
		if key != "" && r.TitleKey() == key {
			return i
		}
	}
	return -1
}
