// Package cache holds recent catalog search results in memory, backed by a durable KV tier.
//
// Entries are keyed by the normalized title, expire after a TTL and are always replaced whole.
// Every write rewrites the durable snapshot; durable failures are logged and never surface to
// callers, so the in-memory tier keeps working when the database does not.
package cache

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/matching"
	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/repositories"
	"github.com/desertthunder/mangax/internal/shared"
)

// EventKind describes a cache change.
type EventKind string

const (
	EventPut        EventKind = "put"
	EventInvalidate EventKind = "invalidate"
	EventClear      EventKind = "clear"
	EventSync       EventKind = "sync"
)

// Event is delivered to subscribers after the cache changes.
type Event struct {
	Kind EventKind `json:"kind"`
	Keys []string  `json:"keys,omitempty"`
}

// Listener receives cache events. It runs on the goroutine that changed the cache.
type Listener func(Event)

// Options configures a [Cache].
type Options struct {
	TTL             time.Duration
	KeyLength       int
	ExcludedFormats []string
	Now             func() time.Time
	Logger          *log.Logger
}

// DefaultOptions returns a 24h TTL, 100 rune keys and novels excluded.
func DefaultOptions() Options {
	return Options{TTL: 24 * time.Hour, KeyLength: 100, ExcludedFormats: []string{"NOVEL"}}
}

// Cache is the two-tier search result cache. It is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	persistMu sync.Mutex
	entries   map[string]models.CacheEntry
	store     repositories.KVStore
	opts      Options
	logger    *log.Logger
	listeners map[int]Listener
	nextID    int
}

// New creates a cache. A nil store keeps the cache memory-only.
func New(store repositories.KVStore, opts Options) *Cache {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.KeyLength <= 0 {
		opts.KeyLength = def.KeyLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewNopLogger()
	}

	return &Cache{
		entries:   make(map[string]models.CacheEntry),
		store:     store,
		opts:      opts,
		logger:    opts.Logger,
		listeners: make(map[int]Listener),
	}
}

// Key derives the cache key of title.
func (c *Cache) Key(title string) string {
	return matching.Truncate(matching.Normalize(title, false), c.opts.KeyLength)
}

// Get returns the cached candidates for title. bypass forces a miss.
func (c *Cache) Get(title string, bypass bool) ([]models.CandidateRecord, bool) {
	if bypass {
		return nil, false
	}

	key := c.Key(title)
	now := c.opts.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !entry.Valid(now, c.opts.TTL) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !cur.Valid(now, c.opts.TTL) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return slices.Clone(entry.Candidates), true
}

// Put replaces the entry for title with candidates, timestamped now.
func (c *Cache) Put(title string, candidates []models.CandidateRecord) {
	key := c.Key(title)
	entry := models.CacheEntry{
		Key:        key,
		Candidates: slices.Clone(candidates),
		Timestamp:  c.opts.Now(),
	}
	if entry.Candidates == nil {
		entry.Candidates = []models.CandidateRecord{}
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.persist()
	c.notify(Event{Kind: EventPut, Keys: []string{key}})
}

// Invalidate removes the entries for titles, plus any entry holding a candidate whose primary,
// alternate or native title normalizes to one of them. It returns how many entries were removed.
func (c *Cache) Invalidate(titles ...string) int {
	var removed []string

	c.mu.Lock()
	for _, title := range titles {
		key := c.Key(title)
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed = append(removed, key)
		}

		norm := matching.Normalize(title, false)
		if norm == "" {
			continue
		}
		for k, entry := range c.entries {
			if holdsTitle(entry, norm) {
				delete(c.entries, k)
				removed = append(removed, k)
			}
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}

	c.persist()
	c.notify(Event{Kind: EventInvalidate, Keys: removed})
	return len(removed)
}

// holdsTitle reports whether any candidate of entry carries a canonical title equal to norm.
func holdsTitle(entry models.CacheEntry, norm string) bool {
	for _, cand := range entry.Candidates {
		for _, t := range []string{cand.Titles.Primary, cand.Titles.Alternate, cand.Titles.Native} {
			if t != "" && matching.Normalize(t, false) == norm {
				return true
			}
		}
	}
	return false
}

// Clear drops every entry from both tiers.
func (c *Cache) Clear() {
	c.persistMu.Lock()
	c.mu.Lock()
	c.entries = make(map[string]models.CacheEntry)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Remove(DurableKey); err != nil {
			c.logger.Warn("durable cache clear failed", "err", err)
		}
	}
	c.persistMu.Unlock()

	c.notify(Event{Kind: EventClear})
}

// Len returns the number of entries held in memory, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SyncFromDurable merges the durable snapshot into memory.
//
// For keys present in both tiers the newer timestamp wins. Expired durable entries and entries
// holding an excluded format are dropped. A snapshot with an unknown version is ignored.
func (c *Cache) SyncFromDurable() error {
	if c.store == nil {
		return nil
	}

	snap, found, err := loadSnapshot(c.store)
	if errors.Is(err, shared.ErrUnsupportedVersion) {
		c.logger.Warn("ignoring durable cache", "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	now := c.opts.Now()
	var merged, dropped []string

	c.mu.Lock()
	for key, entry := range snap.Entries {
		switch {
		case c.hasExcludedFormat(entry.Candidates):
			dropped = append(dropped, key)
			continue
		case !entry.Valid(now, c.opts.TTL):
			dropped = append(dropped, key)
			continue
		}

		if cur, ok := c.entries[key]; ok && !entry.Timestamp.After(cur.Timestamp) {
			continue
		}
		entry.Key = key
		c.entries[key] = entry
		merged = append(merged, key)
	}
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.logger.Debug("dropped durable cache entries", "count", len(dropped))
		c.persist()
	}
	if len(merged) > 0 {
		c.notify(Event{Kind: EventSync, Keys: merged})
	}
	return nil
}

// Subscribe registers l and returns a function that removes it.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) hasExcludedFormat(candidates []models.CandidateRecord) bool {
	for _, cand := range candidates {
		for _, f := range c.opts.ExcludedFormats {
			if strings.EqualFold(cand.Format, f) {
				return true
			}
		}
	}
	return false
}

// snapshotLocked copies the live entries. c.mu must be held.
func (c *Cache) snapshotLocked() snapshot {
	now := c.opts.Now()
	snap := snapshot{SavedAt: now, Entries: make(map[string]models.CacheEntry, len(c.entries))}
	for k, e := range c.entries {
		if e.Valid(now, c.opts.TTL) {
			snap.Entries[k] = e
		}
	}
	return snap
}

// persist rewrites the durable snapshot from the current memory tier.
func (c *Cache) persist() {
	if c.store == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	snap := c.snapshotLocked()
	c.mu.RUnlock()

	if err := saveSnapshot(c.store, snap); err != nil {
		c.logger.Warn("durable cache write failed", "key", DurableKey, "entries", len(snap.Entries), "err", err)
	}
}

func (c *Cache) notify(ev Event) {
	c.mu.RLock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
