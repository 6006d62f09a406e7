package tasks

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/repositories"
	"github.com/desertthunder/mangax/internal/shared"
)

const (
	resultsKey   = "match_results"
	pendingKey   = "pending_set"
	StateVersion = 1
)

// StateStore persists match results and the pending set between sessions.
type StateStore struct {
	kv     repositories.KVStore
	logger *log.Logger
}

// NewStateStore creates a StateStore. A nil kv keeps state in memory only.
func NewStateStore(kv repositories.KVStore, logger *log.Logger) *StateStore {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &StateStore{kv: kv, logger: logger}
}

// Load reads persisted state. Data written with an unknown version is ignored with a warning.
func (s *StateStore) Load() ([]models.MatchResult, models.PendingSet, error) {
	if s.kv == nil {
		return nil, nil, nil
	}

	results, err := loadState[[]models.MatchResult](s, resultsKey)
	if err != nil {
		return nil, nil, err
	}
	pending, err := loadState[models.PendingSet](s, pendingKey)
	if err != nil {
		return nil, nil, err
	}
	return results, pending, nil
}

func loadState[T any](s *StateStore, key string) (T, error) {
	data, _, err := repositories.LoadVersioned[T](s.kv, key, StateVersion)
	if errors.Is(err, shared.ErrUnsupportedVersion) {
		s.logger.Warn("ignoring persisted state", "key", key, "err", err)
		var zero T
		return zero, nil
	}
	if err != nil {
		return data, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

// Save writes results and pending. Each key is replaced whole.
func (s *StateStore) Save(results []models.MatchResult, pending models.PendingSet) error {
	if s.kv == nil {
		return nil
	}
	if results == nil {
		results = []models.MatchResult{}
	}
	if pending == nil {
		pending = models.PendingSet{}
	}

	if err := repositories.SaveVersioned(s.kv, resultsKey, StateVersion, results); err != nil {
		return err
	}
	return repositories.SaveVersioned(s.kv, pendingKey, StateVersion, pending)
}
