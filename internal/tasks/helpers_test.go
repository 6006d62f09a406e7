package tasks

import (
	"testing"
	"time"

	"github.com/desertthunder/mangax/internal/cache"
	"github.com/desertthunder/mangax/internal/limiter"
	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/services"
	"github.com/desertthunder/mangax/internal/shared"
	tu "github.com/desertthunder/mangax/internal/testing"
)

// fastQueue grants a permit every 100µs.
func fastQueue() *limiter.Queue {
	return limiter.New(limiter.Options{RequestsPerMinute: 600000})
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}
}

func newTestSearcher(t *testing.T, catalog *tu.MockCatalog, cfg SearchConfig) (*Searcher, *cache.Cache) {
	t.Helper()
	c := cache.New(nil, cache.DefaultOptions())
	cfg.Retry = fastPolicy()
	return NewSearcher(catalog, fastQueue(), c, matching.NewScorer(matching.DefaultOptions()), cfg, nil), c
}

func newTestDriver(t *testing.T, catalog *tu.MockCatalog, chunkSize int) (*Driver, *cache.Cache) {
	t.Helper()
	s, c := newTestSearcher(t, catalog, DefaultSearchConfig())
	return NewDriver(s, c, chunkSize, DefaultDecisionConfig(), nil), c
}

func newTestConfig() *shared.Config {
	cfg := shared.DefaultConfig()
	cfg.Limiter.RequestsPerMinute = 600000
	cfg.Limiter.SafetyMargin = 0
	cfg.Retry.BaseDelay = time.Millisecond
	return cfg
}

func record(id int, title string) models.CandidateRecord {
	return models.CandidateRecord{ExternalID: id, Titles: models.TitleSet{Primary: title}, Format: "MANGA"}
}

func apiError(status int, err error) error {
	return &services.APIError{Status: status, Err: err}
}

// drain reads events until the stream closes and returns the last one.
func drain(t *testing.T, events <-chan Event) (last Event, all []Event) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return last, all
			}
			last = ev
			all = append(all, ev)
		case <-timeout:
			t.Fatal("timed out waiting for batch to finish")
		}
	}
}
