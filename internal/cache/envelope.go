package cache

import (
	"time"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/repositories"
)

const (
	// DurableKey is the KV key holding the persisted cache.
	DurableKey = "search_cache"
	// Version is the schema version of the persisted cache.
	Version = 1
)

// snapshot is the persisted form of the cache: every live entry keyed by cache key.
type snapshot struct {
	SavedAt time.Time                    `json:"saved_at"`
	Entries map[string]models.CacheEntry `json:"entries"`
}

func loadSnapshot(store repositories.KVStore) (snapshot, bool, error) {
	return repositories.LoadVersioned[snapshot](store, DurableKey, Version)
}

func saveSnapshot(store repositories.KVStore, s snapshot) error {
	return repositories.SaveVersioned(store, DurableKey, Version, s)
}
