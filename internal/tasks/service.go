package tasks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/cache"
	"github.com/desertthunder/mangax/internal/limiter"
	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/repositories"
	"github.com/desertthunder/mangax/internal/services"
	"github.com/desertthunder/mangax/internal/shared"
)

// EventKind distinguishes the events of a batch stream.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventDone     EventKind = "done"
)

// Event is one element of the stream returned by [Service.StartBatch].
//
// The final event has Kind [EventDone] and carries the outcome; Err is set when the batch was
// stopped by an auth or rate-limit failure.
type Event struct {
	Kind     EventKind           `json:"kind"`
	Progress *ProgressUpdate     `json:"progress,omitempty"`
	Result   *models.MatchResult `json:"result,omitempty"`
	Outcome  *BatchOutcome       `json:"outcome,omitempty"`
	Error    string              `json:"error,omitempty"`
	Err      error               `json:"-"`
}

// RunLog records batch runs.
type RunLog interface {
	Create(run *models.BatchRun) error
	Update(run *models.BatchRun) error
}

// Stats is a snapshot of the service's shared resources.
type Stats struct {
	Running      bool                       `json:"running"`
	CacheEntries int                        `json:"cache_entries"`
	QueueWaiting int                        `json:"queue_waiting"`
	Interval     time.Duration              `json:"interval"`
	LastGrant    time.Time                  `json:"last_grant"`
	Pending      int                        `json:"pending"`
	ByStatus     map[models.MatchStatus]int `json:"by_status"`
}

// Service owns the cache, limiter and driver and is the single entry point for batches and
// review actions. Build one per process and share it.
type Service struct {
	mu        sync.Mutex
	cache     *cache.Cache
	queue     *limiter.Queue
	searcher  *Searcher
	driver    *Driver
	state     *StateStore
	runs      RunLog
	preferred models.TitleField
	results   []models.MatchResult
	pending   models.PendingSet
	cancel    context.CancelFunc
	done      chan struct{}
	now       func() time.Time
	logger    *log.Logger
}

type serviceSettings struct {
	runs   RunLog
	logger *log.Logger
	now    func() time.Time
}

// Option customizes [NewService].
type Option func(*serviceSettings)

// WithRunLog records every batch in r.
func WithRunLog(r RunLog) Option {
	return func(s *serviceSettings) { s.runs = r }
}

// WithLogger replaces the discard logger.
func WithLogger(l *log.Logger) Option {
	return func(s *serviceSettings) { s.logger = l }
}

// WithClock replaces time.Now for result timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *serviceSettings) { s.now = now }
}

// NewService wires a Service from configuration. kv may be nil for a memory-only service.
//
// Persisted results, the pending set and the durable cache are loaded immediately; failures to
// read them are logged and the service starts empty.
func NewService(cfg *shared.Config, catalog services.Catalog, kv repositories.KVStore, opts ...Option) (*Service, error) {
	settings := serviceSettings{logger: shared.NewNopLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&settings)
	}
	logger := settings.logger

	preferred, err := matching.ParseTitleField(cfg.Matching.PreferredTitle)
	if err != nil {
		return nil, err
	}

	scorer := matching.NewScorer(matching.Options{
		MinTitleLength:   cfg.Matching.MinTitleLength,
		Precision:        cfg.Matching.Precision,
		PreferredTitle:   preferred,
		PreferenceWeight: cfg.Matching.PreferenceWeight,
	})

	queue := limiter.New(limiter.Options{
		RequestsPerMinute: cfg.Limiter.RequestsPerMinute,
		SafetyMargin:      cfg.Limiter.SafetyMargin,
		Logger:            shared.WithLogger(logger, "component", "limiter"),
	})

	c := cache.New(kv, cache.Options{
		TTL:             cfg.Cache.TTL,
		KeyLength:       cfg.Cache.KeyLength,
		ExcludedFormats: cfg.Matching.ExcludedFormats,
		Now:             settings.now,
		Logger:          shared.WithLogger(logger, "component", "cache"),
	})

	searcher := NewSearcher(catalog, queue, c, scorer, SearchConfig{
		PerPage:         cfg.Catalog.PerPage,
		MaxResults:      cfg.Catalog.MaxResults,
		ExcludedFormats: cfg.Matching.ExcludedFormats,
		FallbackFloor:   cfg.Matching.FallbackFloor,
		Retry:           RetryPolicy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay},
	}, shared.WithLogger(logger, "component", "search"))

	driver := NewDriver(searcher, c, cfg.Catalog.IDChunkSize, DecisionConfig{
		Threshold: cfg.Matching.ConfidenceThreshold,
		Margin:    cfg.Matching.ConfidenceMargin,
	}, shared.WithLogger(logger, "component", "batch"))
	driver.now = settings.now

	s := &Service{
		cache:     c,
		queue:     queue,
		searcher:  searcher,
		driver:    driver,
		state:     NewStateStore(kv, logger),
		runs:      settings.runs,
		preferred: preferred,
		now:       settings.now,
		logger:    logger,
	}

	if s.results, s.pending, err = s.state.Load(); err != nil {
		logger.Warn("could not load persisted state", "err", err)
	}
	if err := c.SyncFromDurable(); err != nil {
		logger.Warn("could not load durable cache", "err", err)
	}

	return s, nil
}

// StartBatch resolves entries from scratch, replacing any previous results once it finishes.
func (s *Service) StartBatch(ctx context.Context, entries []models.SourceEntry, opts SearchOptions) (<-chan Event, error) {
	return s.start(ctx, entries, BatchOptions{SearchOptions: opts}, models.ModeRun)
}

// Resume re-runs a batch over entries, keeping every reviewed result. With no entries it resumes
// the previous session: the sources of all current results plus the pending set.
func (s *Service) Resume(ctx context.Context, entries []models.SourceEntry, opts SearchOptions) (<-chan Event, error) {
	s.mu.Lock()
	previous := slices.Clone(s.results)
	if len(entries) == 0 {
		for _, r := range s.results {
			entries = append(entries, r.Source)
		}
		entries = append(entries, s.pending...)
	}
	s.mu.Unlock()

	return s.start(ctx, entries, BatchOptions{SearchOptions: opts, Previous: previous}, models.ModeResume)
}

func (s *Service) start(ctx context.Context, entries []models.SourceEntry, opts BatchOptions, mode models.BatchMode) (<-chan Event, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil, shared.ErrBatchRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	run := models.NewBatchRun(mode, len(entries), s.now())
	if s.runs != nil {
		if err := s.runs.Create(run); err != nil {
			s.logger.Warn("could not record batch run", "err", err)
			run = nil
		}
	}

	s.logger.Info("batch started", "mode", mode, "entries", len(entries))

	events := make(chan Event, len(entries)+4)
	progress := make(chan ProgressUpdate, len(entries)+2)

	go func() {
		defer close(done)
		defer close(events)
		defer cancel()

		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for u := range progress {
				events <- progressEvent(u)
			}
		}()

		outcome, err := s.driver.Run(runCtx, entries, opts, progress)
		close(progress)
		<-forwarded

		s.finish(run, outcome, err)

		ev := Event{Kind: EventDone, Outcome: outcome, Err: err}
		if err != nil {
			ev.Error = err.Error()
		}
		events <- ev
	}()

	return events, nil
}

func progressEvent(u ProgressUpdate) Event {
	if res, ok := u.Data.(models.MatchResult); ok {
		u.Data = nil
		return Event{Kind: EventResult, Progress: &u, Result: &res}
	}
	return Event{Kind: EventProgress, Progress: &u}
}

// finish stores the outcome, persists it and closes the run log entry.
func (s *Service) finish(run *models.BatchRun, outcome *BatchOutcome, err error) {
	s.mu.Lock()
	s.results = outcome.Results
	s.pending = outcome.Pending.Without(outcome.Results)
	s.cancel = nil
	results, pending := slices.Clone(s.results), slices.Clone(s.pending)
	s.mu.Unlock()

	if err := s.state.Save(results, pending); err != nil {
		s.logger.Warn("could not persist batch state", "err", err)
	}

	s.logger.Info("batch finished",
		"processed", outcome.Processed,
		"total", outcome.Total,
		"pending", len(outcome.Pending),
		"cancelled", outcome.Cancelled,
	)

	if run == nil || s.runs == nil {
		return
	}

	finished := s.now()
	run.Processed = outcome.Processed
	run.Tally(results)
	run.Pending += len(pending)
	run.Cancelled = outcome.Cancelled
	run.FinishedAt = &finished
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	if err := s.runs.Update(run); err != nil {
		s.logger.Warn("could not update batch run", "id", run.ID, "err", err)
	}
}

// Cancel stops the running batch, if any. Calling it more than once is harmless.
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the running batch, if any, has finished and been persisted.
func (s *Service) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a batch is in progress.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Results returns a copy of the current results.
func (s *Service) Results() []models.MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.results)
}

// Pending returns a copy of the pending set.
func (s *Service) Pending() models.PendingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

// Search runs a single ad-hoc title search.
func (s *Service) Search(ctx context.Context, title string, opts SearchOptions) ([]models.ScoredCandidate, error) {
	return s.searcher.Search(ctx, models.SourceEntry{Title: title}, opts)
}

// ClearCacheFor invalidates the cached searches for titles and returns how many existed.
func (s *Service) ClearCacheFor(titles ...string) int {
	return s.cache.Invalidate(titles...)
}

// ClearCache empties both cache tiers.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// OnCacheUpdated registers a cache observer and returns its unsubscribe function.
func (s *Service) OnCacheUpdated(l cache.Listener) func() {
	return s.cache.Subscribe(l)
}

// PreferredTitle returns the display title of c under the configured preference.
func (s *Service) PreferredTitle(c models.CandidateRecord) string {
	return matching.PreferredTitle(c, s.preferred)
}

// Stats returns a snapshot of cache, limiter and result counts.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Running:  s.cancel != nil,
		Pending:  len(s.pending),
		ByStatus: make(map[models.MatchStatus]int),
	}
	for _, r := range s.results {
		st.ByStatus[r.Status]++
	}
	s.mu.Unlock()

	st.CacheEntries = s.cache.Len()
	st.QueueWaiting = s.queue.Waiting()
	st.Interval = s.queue.Interval()
	st.LastGrant = s.queue.LastGrant()
	return st
}
