package cache

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mangax/internal/models"
	tu "github.com/desertthunder/mangax/internal/testing"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func berserk() []models.CandidateRecord {
	return []models.CandidateRecord{
		{ExternalID: 30002, Titles: models.TitleSet{Primary: "Berserk"}, Format: "MANGA", Status: "RELEASING"},
		{ExternalID: 99999, Titles: models.TitleSet{Primary: "Berserk: Shinen no Kami"}, Format: "ONE_SHOT"},
	}
}

// newTestCache returns a cache whose clock is controlled through the returned pointer.
func newTestCache(t *testing.T, store *tu.MemoryKV) (*Cache, *time.Time) {
	t.Helper()

	clock := base
	opts := DefaultOptions()
	opts.Now = func() time.Time { return clock }

	if store == nil {
		return New(nil, opts), &clock
	}
	return New(store, opts), &clock
}

func TestCache(t *testing.T) {
	t.Run("PutThenGet", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("Berserk", berserk())

		got, ok := c.Get("Berserk", false)
		if !ok {
			t.Fatal("expected cache hit")
		}
		if !reflect.DeepEqual(got, berserk()) {
			t.Errorf("expected stored candidates, got %+v", got)
		}
	})

	t.Run("KeyIsNormalized", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("One Piece", berserk())

		if _, ok := c.Get("  ONE   PIECE! ", false); !ok {
			t.Error("expected differently formatted title to hit")
		}
		if got := c.Key("One Piece"); got != "one piece" {
			t.Errorf("unexpected key %q", got)
		}
	})

	t.Run("KeyIsTruncated", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		long := strings.Repeat("a", 150)

		if got := len([]rune(c.Key(long))); got != 100 {
			t.Errorf("expected 100 rune key, got %d", got)
		}
	})

	t.Run("Bypass", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("Berserk", berserk())

		if _, ok := c.Get("Berserk", true); ok {
			t.Error("expected bypass to force a miss")
		}
	})

	t.Run("EmptyCandidatesAreCached", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("Nothing Here", nil)

		got, ok := c.Get("Nothing Here", false)
		if !ok || len(got) != 0 {
			t.Errorf("expected cached empty result, got %v %v", got, ok)
		}
	})

	t.Run("ReturnedSliceIsACopy", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("Berserk", berserk())

		got, _ := c.Get("Berserk", false)
		got[0].ExternalID = 1

		again, _ := c.Get("Berserk", false)
		if again[0].ExternalID != 30002 {
			t.Error("mutating a returned slice changed the cache")
		}
	})

	t.Run("TTL", func(t *testing.T) {
		c, clock := newTestCache(t, nil)
		c.Put("Berserk", berserk())

		*clock = base.Add(23 * time.Hour)
		if _, ok := c.Get("Berserk", false); !ok {
			t.Error("expected entry to be valid after 23h")
		}

		*clock = base.Add(24 * time.Hour)
		if _, ok := c.Get("Berserk", false); ok {
			t.Error("expected entry to expire after 24h")
		}
		if c.Len() != 0 {
			t.Errorf("expected expired entry to be evicted, got %d entries", c.Len())
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		c, _ := newTestCache(t, nil)
		c.Put("Berserk", berserk())
		c.Put("Vagabond", nil)

		if n := c.Invalidate("berserk", "Unknown Title"); n != 1 {
			t.Errorf("expected 1 invalidated entry, got %d", n)
		}
		if _, ok := c.Get("Berserk", false); ok {
			t.Error("expected invalidated entry to miss")
		}
		if _, ok := c.Get("Vagabond", false); !ok {
			t.Error("expected other entries to survive")
		}
		if n := c.Invalidate("Berserk"); n != 0 {
			t.Errorf("expected 0 on second invalidation, got %d", n)
		}
	})

	t.Run("InvalidateSweepsOtherTitleForms", func(t *testing.T) {
		store := tu.NewMemoryKV()
		c, _ := newTestCache(t, store)
		aot := []models.CandidateRecord{
			{ExternalID: 53390, Titles: models.TitleSet{Primary: "Shingeki no Kyojin", Alternate: "Attack on Titan"}},
		}
		c.Put("AoT", aot)
		c.Put("Shingeki", aot)
		c.Put("Berserk", berserk())

		var events []Event
		c.Subscribe(func(ev Event) { events = append(events, ev) })

		if n := c.Invalidate("attack on titan!"); n != 2 {
			t.Errorf("expected 2 invalidated entries, got %d", n)
		}
		for _, title := range []string{"AoT", "Shingeki"} {
			if _, ok := c.Get(title, false); ok {
				t.Errorf("expected %q to be swept", title)
			}
		}
		if _, ok := c.Get("Berserk", false); !ok {
			t.Error("expected unrelated entry to survive")
		}
		if len(events) != 1 || len(events[0].Keys) != 2 {
			t.Errorf("expected one invalidate event with 2 keys, got %+v", events)
		}

		reloaded, _ := newTestCache(t, store)
		if err := reloaded.SyncFromDurable(); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if reloaded.Len() != 1 {
			t.Errorf("expected sweep to be persisted, got %d durable entries", reloaded.Len())
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := tu.NewMemoryKV()
		c, _ := newTestCache(t, store)
		c.Put("Berserk", berserk())
		c.Clear()

		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d", c.Len())
		}
		if _, found, _ := store.Get(DurableKey); found {
			t.Error("expected durable tier to be cleared")
		}
	})
}

func TestCacheDurable(t *testing.T) {
	t.Run("PutPersists", func(t *testing.T) {
		store := tu.NewMemoryKV()
		c, _ := newTestCache(t, store)
		c.Put("Berserk", berserk())

		fresh, _ := newTestCache(t, store)
		if err := fresh.SyncFromDurable(); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		got, ok := fresh.Get("Berserk", false)
		if !ok || !reflect.DeepEqual(got, berserk()) {
			t.Errorf("expected durable entry after sync, got %v %v", got, ok)
		}
	})

	t.Run("NewerTimestampWins", func(t *testing.T) {
		store := tu.NewMemoryKV()
		c, clock := newTestCache(t, store)

		*clock = base.Add(time.Hour)
		mine := []models.CandidateRecord{{ExternalID: 1, Titles: models.TitleSet{Primary: "Berserk"}}}
		c.Put("Berserk", mine)

		older := []models.CandidateRecord{{ExternalID: 2, Titles: models.TitleSet{Primary: "Berserk"}}}
		vagabond := []models.CandidateRecord{{ExternalID: 3, Titles: models.TitleSet{Primary: "Vagabond"}}}
		err := saveSnapshot(store, snapshot{Entries: map[string]models.CacheEntry{
			"berserk":  {Key: "berserk", Candidates: older, Timestamp: base},
			"vagabond": {Key: "vagabond", Candidates: vagabond, Timestamp: base},
		}})
		if err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		if err := c.SyncFromDurable(); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		if got, _ := c.Get("Berserk", false); got[0].ExternalID != 1 {
			t.Errorf("expected newer in-memory entry to win, got %d", got[0].ExternalID)
		}
		if got, ok := c.Get("Vagabond", false); !ok || got[0].ExternalID != 3 {
			t.Errorf("expected durable-only entry to be merged, got %v %v", got, ok)
		}
	})

	t.Run("DropsExcludedAndExpired", func(t *testing.T) {
		store := tu.NewMemoryKV()
		c, clock := newTestCache(t, store)
		*clock = base.Add(48 * time.Hour)

		novel := []models.CandidateRecord{{ExternalID: 5, Titles: models.TitleSet{Primary: "Kino no Tabi"}, Format: "NOVEL"}}
		err := saveSnapshot(store, snapshot{Entries: map[string]models.CacheEntry{
			"kino no tabi": {Key: "kino no tabi", Candidates: novel, Timestamp: base.Add(47 * time.Hour)},
			"berserk":      {Key: "berserk", Candidates: berserk(), Timestamp: base},
		}})
		if err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		if err := c.SyncFromDurable(); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("expected nothing merged, got %d entries", c.Len())
		}

		snap, _, err := loadSnapshot(store)
		if err != nil {
			t.Fatalf("failed to reload snapshot: %v", err)
		}
		if len(snap.Entries) != 0 {
			t.Errorf("expected durable tier to be pruned, got %d entries", len(snap.Entries))
		}
	})

	t.Run("UnknownVersionIgnored", func(t *testing.T) {
		store := tu.NewMemoryKV()
		if err := store.Set(DurableKey, `{"version":99,"data":{"entries":{"x":{}}}}`); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		c, _ := newTestCache(t, store)
		if err := c.SyncFromDurable(); err != nil {
			t.Errorf("expected unknown version to be ignored, got %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("expected no entries, got %d", c.Len())
		}
	})

	t.Run("ReadFailure", func(t *testing.T) {
		store := tu.NewMemoryKV()
		store.FailReads = true

		c, _ := newTestCache(t, store)
		if err := c.SyncFromDurable(); err == nil {
			t.Error("expected read failure to be reported")
		}
	})

	t.Run("WriteFailureIsSwallowed", func(t *testing.T) {
		store := tu.NewMemoryKV()
		store.FailWrites = true

		c, _ := newTestCache(t, store)
		c.Put("Berserk", berserk())

		if _, ok := c.Get("Berserk", false); !ok {
			t.Error("expected memory tier to work when durable writes fail")
		}
		if store.Writes() != 0 {
			t.Errorf("expected no durable writes, got %d", store.Writes())
		}
	})
}

func TestCacheSubscribe(t *testing.T) {
	c, _ := newTestCache(t, nil)

	var events []Event
	unsubscribe := c.Subscribe(func(ev Event) { events = append(events, ev) })

	c.Put("Berserk", berserk())
	c.Invalidate("Berserk")
	c.Invalidate("Berserk")
	c.Clear()

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	kinds := []EventKind{EventPut, EventInvalidate, EventClear}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("event %d: expected %s, got %s", i, k, events[i].Kind)
		}
	}
	if events[0].Keys[0] != "berserk" {
		t.Errorf("expected put event keyed by cache key, got %v", events[0].Keys)
	}

	unsubscribe()
	unsubscribe()
	c.Put("Vagabond", nil)
	if len(events) != 3 {
		t.Errorf("expected no events after unsubscribe, got %d", len(events))
	}
}
