package tasks

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/cache"
	"github.com/desertthunder/mangax/internal/limiter"
	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/services"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

// ExactOnlySimilarity is the title similarity a record needs to survive exact-only ranking.
const ExactOnlySimilarity = 0.85

// SearchOptions tunes a single title search.
type SearchOptions struct {
	ExactOnly   bool `json:"exact_only"`
	BypassCache bool `json:"bypass_cache"`
}

// SearchConfig configures a [Searcher].
type SearchConfig struct {
	PerPage         int
	MaxResults      int
	ExcludedFormats []string
	FallbackFloor   int // confidence given to an exact-only fallback
	Retry           RetryPolicy
}

// DefaultSearchConfig returns 50 records per page, a 50 record cap, novels excluded and a 10%
// fallback floor.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		PerPage:         services.MaxPerPage,
		MaxResults:      50,
		ExcludedFormats: []string{"NOVEL"},
		FallbackFloor:   10,
		Retry:           DefaultRetryPolicy(),
	}
}

// Searcher resolves titles to ranked candidates. Every catalog call passes through the limiter
// and at most one title search is in flight at a time.
type Searcher struct {
	catalog  services.Catalog
	queue    *limiter.Queue
	cache    *cache.Cache
	scorer   *matching.Scorer
	cfg      SearchConfig
	inflight *semaphore.Weighted
	logger   *log.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(catalog services.Catalog, queue *limiter.Queue, c *cache.Cache, scorer *matching.Scorer, cfg SearchConfig, logger *log.Logger) *Searcher {
	def := DefaultSearchConfig()
	if cfg.PerPage <= 0 || cfg.PerPage > services.MaxPerPage {
		cfg.PerPage = def.PerPage
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if logger == nil {
		logger = shared.NewNopLogger()
	}

	return &Searcher{
		catalog:  catalog,
		queue:    queue,
		cache:    c,
		scorer:   scorer,
		cfg:      cfg,
		inflight: semaphore.NewWeighted(1),
		logger:   logger,
	}
}

// Search returns the ranked candidates for entry's title.
//
// The cache is consulted first unless opts.BypassCache is set. On a miss the catalog is paged
// until MaxResults records or the last page; the format-filtered records are cached whole. A
// malformed page ends paging with what was accumulated, and such partial lists are not cached.
func (s *Searcher) Search(ctx context.Context, entry models.SourceEntry, opts SearchOptions) ([]models.ScoredCandidate, error) {
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.inflight.Release(1)

	if cached, ok := s.cache.Get(entry.Title, opts.BypassCache); ok {
		return s.Rank(entry, cached, opts.ExactOnly), nil
	}

	records, complete, err := s.collect(ctx, entry.Title)
	if err != nil {
		return nil, err
	}

	records = s.filterFormats(records)
	if complete {
		s.cache.Put(entry.Title, records)
	}

	return s.Rank(entry, records, opts.ExactOnly), nil
}

// collect pages through the catalog. complete is false when a malformed page cut paging short.
func (s *Searcher) collect(ctx context.Context, title string) (records []models.CandidateRecord, complete bool, err error) {
	for page := 1; ; page++ {
		recs, hasMore, err := s.SearchPage(ctx, title, page)
		if errors.Is(err, shared.ErrMalformedResponse) {
			s.logger.Warn("discarding malformed page", "title", title, "page", page, "err", err)
			return truncate(records, s.cfg.MaxResults), false, nil
		}
		if err != nil {
			return nil, false, err
		}

		records = append(records, recs...)
		if !hasMore || len(records) >= s.cfg.MaxResults {
			return truncate(records, s.cfg.MaxResults), true, nil
		}
	}
}

// SearchPage fetches one page of raw records for title.
func (s *Searcher) SearchPage(ctx context.Context, title string, page int) ([]models.CandidateRecord, bool, error) {
	res, err := callCatalog(ctx, s.queue, s.cfg.Retry, s.logger, title, func(ctx context.Context) (*services.SearchPage, error) {
		return s.catalog.Search(ctx, title, page, s.cfg.PerPage)
	})
	if err != nil {
		return nil, false, err
	}
	return res.Records, res.HasNextPage, nil
}

// FetchByIDs loads records by catalog ID through the limiter.
func (s *Searcher) FetchByIDs(ctx context.Context, ids []int) ([]models.CandidateRecord, error) {
	return callCatalog(ctx, s.queue, s.cfg.Retry, s.logger, joinIDs(ids), func(ctx context.Context) ([]models.CandidateRecord, error) {
		return s.catalog.FetchByIDs(ctx, ids)
	})
}

// Rank scores records against entry and orders them by descending confidence.
//
// Excluded formats are dropped. In exact-only mode a record also needs a title similarity of at
// least [ExactOnlySimilarity] or must contain every word of the entry's title; when that leaves
// nothing, the best scoring record is kept as a fallback with its confidence raised to the floor.
func (s *Searcher) Rank(entry models.SourceEntry, records []models.CandidateRecord, exactOnly bool) []models.ScoredCandidate {
	records = s.filterFormats(records)
	scored := lo.Map(records, func(r models.CandidateRecord, _ int) models.ScoredCandidate {
		return s.scorer.Score(entry, r)
	})
	sortByConfidence(scored)

	if !exactOnly || len(scored) == 0 {
		return scored
	}

	kept := lo.Filter(scored, func(c models.ScoredCandidate, _ int) bool {
		return s.closeEnough(entry, c.Candidate)
	})
	if len(kept) > 0 {
		return kept
	}

	best := scored[0]
	best.Fallback = true
	best.IsExactMatch = false
	best.Confidence = max(best.Confidence, s.cfg.FallbackFloor)
	return []models.ScoredCandidate{best}
}

func (s *Searcher) closeEnough(entry models.SourceEntry, cand models.CandidateRecord) bool {
	for _, title := range entry.Titles() {
		if s.scorer.BestTitleSimilarity(title, cand) >= ExactOnlySimilarity {
			return true
		}
		for _, ct := range candidateTitleList(cand) {
			if matching.ContainsAllWords(title, ct) {
				return true
			}
		}
	}
	return false
}

func (s *Searcher) filterFormats(records []models.CandidateRecord) []models.CandidateRecord {
	out := lo.Filter(records, func(r models.CandidateRecord, _ int) bool {
		return !lo.ContainsBy(s.cfg.ExcludedFormats, func(f string) bool { return strings.EqualFold(f, r.Format) })
	})
	return lo.UniqBy(out, func(r models.CandidateRecord) int { return r.ExternalID })
}

func candidateTitleList(c models.CandidateRecord) []string {
	titles := []string{c.Titles.Primary, c.Titles.Alternate, c.Titles.Native}
	titles = append(titles, c.Synonyms...)
	return lo.Compact(titles)
}

// sortByConfidence orders candidates by descending confidence, keeping catalog order on ties.
func sortByConfidence(cands []models.ScoredCandidate) {
	slices.SortStableFunc(cands, func(a, b models.ScoredCandidate) int {
		return b.Confidence - a.Confidence
	})
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
