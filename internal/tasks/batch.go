package tasks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/cache"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/services"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/samber/lo"
)

// DecisionConfig holds the automatic matching thresholds.
type DecisionConfig struct {
	Threshold int // minimum confidence of the best candidate
	Margin    int // required lead of the best over the runner-up
}

// DefaultDecisionConfig returns threshold 75 and margin 20.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{Threshold: 75, Margin: 20}
}

// DecideStatus picks the automatic status for a ranked candidate list.
//
// No candidates is a conflict unless the entry will be retried, in which case it stays pending.
// An exact best candidate matches; so does a best candidate at or above the threshold that leads
// the runner-up by more than the margin. Fallback candidates never match automatically.
func DecideStatus(cands []models.ScoredCandidate, willRetry bool, cfg DecisionConfig) models.MatchStatus {
	if len(cands) == 0 {
		if willRetry {
			return models.StatusPending
		}
		return models.StatusConflict
	}

	best := cands[0]
	if best.Fallback {
		return models.StatusConflict
	}
	if best.IsExactMatch {
		return models.StatusMatched
	}

	var second int
	if len(cands) > 1 {
		second = cands[1].Confidence
	}
	if best.Confidence >= cfg.Threshold && best.Confidence-second > cfg.Margin {
		return models.StatusMatched
	}
	return models.StatusConflict
}

// BatchOptions configures a single [Driver.Run].
type BatchOptions struct {
	SearchOptions
	// Previous results to merge with. Non-pending results are kept verbatim.
	Previous []models.MatchResult `json:"-"`
}

// BatchOutcome is what a batch produced, complete or not.
type BatchOutcome struct {
	Results   []models.MatchResult `json:"results"`
	Pending   models.PendingSet    `json:"pending"`
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Preserved int                  `json:"preserved"`
	Fetched   int                  `json:"fetched"`
	CacheHits int                  `json:"cache_hits"`
	Searched  int                  `json:"searched"`
	Cancelled bool                 `json:"cancelled"`
}

// Driver resolves batches of source entries.
type Driver struct {
	searcher  *Searcher
	cache     *cache.Cache
	chunkSize int
	decision  DecisionConfig
	now       func() time.Time
	logger    *log.Logger
}

// NewDriver creates a Driver fetching known IDs in chunks of chunkSize.
func NewDriver(searcher *Searcher, c *cache.Cache, chunkSize int, decision DecisionConfig, logger *log.Logger) *Driver {
	if chunkSize <= 0 || chunkSize > services.MaxPerPage {
		chunkSize = 25
	}
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &Driver{
		searcher:  searcher,
		cache:     c,
		chunkSize: chunkSize,
		decision:  decision,
		now:       time.Now,
		logger:    logger,
	}
}

// batchRun is the mutable state of one Run.
type batchRun struct {
	entries  []models.SourceEntry
	results  []*models.MatchResult // by entry index; nil while unresolved
	progress chan<- ProgressUpdate
	out      BatchOutcome
}

func (b *batchRun) resolve(i int, res models.MatchResult, phase Phase) {
	b.results[i] = &res
	b.out.Processed++
	sendProgress(b.progress, resolvedUpdate(phase, b.out.Processed, b.out.Total, res))
}

// Run resolves entries and returns every result produced, in entry order, followed by previous
// results that no entry claimed.
//
// Cancelling ctx stops new catalog calls; the outcome then has Cancelled set, the unresolved
// entries in Pending and a nil error. Auth and rate-limit failures stop the batch the same way but
// are returned as the error. Any other failure only affects its own entry.
func (d *Driver) Run(ctx context.Context, entries []models.SourceEntry, opts BatchOptions, progress chan<- ProgressUpdate) (*BatchOutcome, error) {
	b := &batchRun{
		entries:  entries,
		results:  make([]*models.MatchResult, len(entries)),
		progress: progress,
		out:      BatchOutcome{Total: len(entries)},
	}

	leftovers := d.merge(b, opts.Previous)

	var known, rest []int
	for i, e := range entries {
		switch {
		case b.results[i] != nil:
		case e.HasKnownID():
			known = append(known, i)
		default:
			rest = append(rest, i)
		}
	}

	fallback, err := d.fetchKnown(ctx, b, known)
	if err == nil {
		rest = append(rest, fallback...)
		var toSearch []int
		for _, i := range rest {
			if !d.fromCache(b, i, opts.SearchOptions) {
				toSearch = append(toSearch, i)
			}
		}
		err = d.searchAll(ctx, b, toSearch, opts.SearchOptions)
	}

	for i, r := range b.results {
		if r != nil {
			b.out.Results = append(b.out.Results, *r)
		} else {
			b.out.Pending = append(b.out.Pending, entries[i])
		}
	}
	b.out.Results = append(b.out.Results, leftovers...)
	if b.out.Pending == nil {
		b.out.Pending = models.PendingSet{}
	}

	switch {
	case err == nil:
		return &b.out, nil
	case isCancellation(err):
		b.out.Cancelled = true
		d.logger.Info("batch cancelled", "processed", b.out.Processed, "pending", len(b.out.Pending))
		return &b.out, nil
	default:
		d.logger.Error("batch stopped", "processed", b.out.Processed, "pending", len(b.out.Pending), "err", err)
		return &b.out, err
	}
}

// merge keeps reviewed previous results for matching entries and returns the previous results no
// entry claimed. Entries are paired by external ID first, then by case-insensitive title.
func (d *Driver) merge(b *batchRun, previous []models.MatchResult) []models.MatchResult {
	if len(previous) == 0 {
		return nil
	}

	byID := make(map[int]int)
	byTitle := make(map[string]int)
	for j, p := range previous {
		if id := p.ExternalID(); id > 0 {
			if _, dup := byID[id]; !dup {
				byID[id] = j
			}
		}
		if _, dup := byTitle[p.TitleKey()]; !dup {
			byTitle[p.TitleKey()] = j
		}
	}

	claimed := make(map[int]bool)
	preserved := 0
	for i, e := range b.entries {
		j, ok := -1, false
		if e.HasKnownID() {
			j, ok = byID[e.KnownExternalID]
		}
		if !ok || claimed[j] {
			j, ok = byTitle[models.TitleKey(e.Title)]
		}
		if !ok || claimed[j] {
			continue
		}

		claimed[j] = true
		if previous[j].Status.Reviewed() {
			res := previous[j]
			b.results[i] = &res
			preserved++
		}
	}

	if preserved > 0 {
		b.out.Preserved = preserved
		b.out.Processed = preserved
		sendProgress(b.progress, preservedUpdate(b.out.Processed, b.out.Total, preserved))
	}

	var leftovers []models.MatchResult
	for j, p := range previous {
		if !claimed[j] {
			leftovers = append(leftovers, p)
		}
	}
	return leftovers
}

// fetchKnown resolves entries with a known catalog ID in chunks. Entries whose chunk failed or
// whose ID the catalog did not return are handed back for a title search.
func (d *Driver) fetchKnown(ctx context.Context, b *batchRun, idx []int) (fallback []int, err error) {
	for _, chunk := range lo.Chunk(idx, d.chunkSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ids := lo.Uniq(lo.Map(chunk, func(i int, _ int) int { return b.entries[i].KnownExternalID }))
		records, err := d.searcher.FetchByIDs(ctx, ids)
		switch {
		case err == nil:
		case isCancellation(err) || services.IsBatchFatal(err):
			return nil, err
		default:
			d.logger.Warn("ID chunk failed, falling back to title search", "ids", joinIDs(ids), "err", err)
			fallback = append(fallback, chunk...)
			continue
		}

		byID := lo.KeyBy(records, func(r models.CandidateRecord) int { return r.ExternalID })
		for _, i := range chunk {
			rec, ok := byID[b.entries[i].KnownExternalID]
			if !ok {
				fallback = append(fallback, i)
				continue
			}

			cands := []models.ScoredCandidate{{
				Candidate:    rec,
				Confidence:   100,
				MatchedField: models.FieldID,
				IsExactMatch: true,
			}}
			b.out.Fetched++
			b.resolve(i, d.decide(b.entries[i], cands, false), PhaseFetchIDs)
		}
	}
	return fallback, nil
}

// fromCache resolves entry i from the cache when possible.
func (d *Driver) fromCache(b *batchRun, i int, opts SearchOptions) bool {
	entry := b.entries[i]
	records, ok := d.cache.Get(entry.Title, opts.BypassCache)
	if !ok {
		return false
	}

	b.out.CacheHits++
	cands := d.searcher.Rank(entry, records, opts.ExactOnly)
	b.resolve(i, d.decide(entry, cands, false), PhaseCache)
	return true
}

// searchAll runs the remaining title searches one at a time.
func (d *Driver) searchAll(ctx context.Context, b *batchRun, idx []int, opts SearchOptions) error {
	for _, i := range idx {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry := b.entries[i]
		cands, err := d.searcher.Search(ctx, entry, opts)
		switch {
		case err == nil:
			b.out.Searched++
			b.resolve(i, d.decide(entry, cands, false), PhaseSearch)
		case isCancellation(err) || services.IsBatchFatal(err):
			return err
		default:
			d.logger.Warn("search failed", "title", entry.Title, "err", err)
			b.out.Searched++
			b.resolve(i, d.decide(entry, nil, true), PhaseSearch)
		}
	}
	return nil
}

// decide builds the result for entry and applies the automatic status.
func (d *Driver) decide(entry models.SourceEntry, cands []models.ScoredCandidate, willRetry bool) models.MatchResult {
	res := models.NewMatchResult(entry, cands, d.now())

	status := DecideStatus(cands, willRetry, d.decision)
	if status == models.StatusPending || !models.CanTransition(res.Status, status, models.ActorSystem) {
		return res
	}

	res.Status = status
	if status == models.StatusMatched {
		selected := cands[0].Candidate
		res.Selected = &selected
	}
	return res
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, shared.ErrCancelled)
}

func joinIDs(ids []int) string {
	return strings.Join(lo.Map(ids, func(id int, _ int) string { return strconv.Itoa(id) }), ",")
}
