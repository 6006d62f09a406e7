package main

import (
	"context"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/ui"
	"github.com/urfave/cli/v3"
)

// CacheClear drops the cached searches for the given titles, or every entry when none are given.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	titles := cmd.Args().Slice()
	if len(titles) == 0 {
		before := s.svc.Stats().CacheEntries
		s.svc.ClearCache()
		r.logger.Info("search cache cleared", "entries", before)
		return r.writePlain("%s Cleared %d cached searches\n", ui.Success("✓"), before)
	}

	n := s.svc.ClearCacheFor(titles...)
	r.logger.Info("search cache entries removed", "titles", len(titles), "removed", n)
	return r.writePlain("%s Removed %d cached searches\n", ui.Success("✓"), n)
}

// CacheStats prints the cache size and the state of the request queue and results.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	stats := s.svc.Stats()
	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlain("%s\n", ui.Title("Cache"))
	r.writePlain("  entries:        %d\n", stats.CacheEntries)
	r.writePlain("  ttl:            %s\n", r.config.Cache.TTL)
	r.writePlain("%s\n", ui.Title("Queue"))
	r.writePlain("  interval:       %s\n", stats.Interval)
	r.writePlain("  waiting:        %d\n", stats.QueueWaiting)
	r.writePlain("%s\n", ui.Title("Results"))
	for _, st := range []models.MatchStatus{
		models.StatusMatched, models.StatusManual, models.StatusConflict, models.StatusPending, models.StatusSkipped,
	} {
		r.writePlain("  %-15s %d\n", string(st)+":", stats.ByStatus[st])
	}
	return r.writePlain("  %-15s %d\n", "unprocessed:", stats.Pending)
}
