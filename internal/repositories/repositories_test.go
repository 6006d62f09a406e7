package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "batch_runs")
		if err != nil {
			t.Fatalf("failed to get sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for table without sequence")
	}
}

func TestKVStore(t *testing.T) {
	t.Run("GetMissing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		value, found, err := store.Get("nothing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found || value != "" {
			t.Errorf("expected missing key, got found=%v value=%q", found, value)
		}
	})

	t.Run("SetThenGet", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		if err := store.Set("search_cache", `{"version":1}`); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		value, found, err := store.Get("search_cache")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if !found || value != `{"version":1}` {
			t.Errorf("expected stored value, got found=%v value=%q", found, value)
		}
	})

	t.Run("SetReplaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		for _, v := range []string{"first", "second"} {
			if err := store.Set("k", v); err != nil {
				t.Fatalf("failed to set: %v", err)
			}
		}

		value, _, _ := store.Get("k")
		if value != "second" {
			t.Errorf("expected replaced value, got %q", value)
		}

		keys, err := store.Keys()
		if err != nil {
			t.Fatalf("failed to list keys: %v", err)
		}
		if len(keys) != 1 {
			t.Errorf("expected 1 key, got %d", len(keys))
		}
	})

	t.Run("Remove", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		if err := store.Set("k", "v"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := store.Remove("k"); err != nil {
			t.Fatalf("failed to remove: %v", err)
		}
		if err := store.Remove("k"); err != nil {
			t.Fatalf("removing a missing key should not fail: %v", err)
		}

		if _, found, _ := store.Get("k"); found {
			t.Error("expected key to be gone")
		}
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewKVStore(db)
		db.Close()

		if _, _, err := store.Get("k"); err == nil {
			t.Error("expected error reading from closed database")
		}
		if err := store.Set("k", "v"); err == nil {
			t.Error("expected error writing to closed database")
		}
	})
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewBatchRun(models.ModeRun, 12, time.Now())

		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID == "" {
			t.Error("run ID should be set after creation")
		}
		if run.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", run.Sequence)
		}
	})

	t.Run("GetAndUpdate", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := models.NewBatchRun(models.ModeResume, 5, time.Now())
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		finished := time.Now()
		run.Processed = 3
		run.Matched = 2
		run.Conflicts = 1
		run.Pending = 2
		run.Cancelled = true
		run.ErrorMessage = "cancelled by user"
		run.FinishedAt = &finished

		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.Get(run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}

		if got.Mode != models.ModeResume {
			t.Errorf("expected mode resume, got %s", got.Mode)
		}
		if got.Processed != 3 || got.Matched != 2 || got.Conflicts != 1 || got.Pending != 2 {
			t.Errorf("unexpected counters: %+v", got)
		}
		if !got.Cancelled {
			t.Error("expected cancelled flag")
		}
		if got.ErrorMessage != "cancelled by user" {
			t.Errorf("unexpected error message %q", got.ErrorMessage)
		}
		if !got.Finished() {
			t.Error("expected run to be finished")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewRunRepository(db).Get("nonexistent-id")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := models.NewBatchRun(models.ModeRun, 1, time.Now())
		run.ID = "nonexistent-id"
		if err := NewRunRepository(db).Update(run); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAndLatest", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		if _, err := repo.Latest(); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on empty log, got %v", err)
		}

		for i := range 3 {
			if err := repo.Create(models.NewBatchRun(models.ModeRun, i, time.Now())); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		all, err := repo.List(0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(all))
		}
		if all[0].Sequence != 3 {
			t.Errorf("expected newest first, got sequence %d", all[0].Sequence)
		}

		limited, err := repo.List(2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 runs, got %d", len(limited))
		}

		latest, err := repo.Latest()
		if err != nil {
			t.Fatalf("failed to get latest: %v", err)
		}
		if latest.Sequence != 3 || latest.Total != 2 {
			t.Errorf("unexpected latest run: %+v", latest)
		}
	})
}

func TestVersioned(t *testing.T) {
	type payload struct {
		Titles []string `json:"titles"`
	}

	t.Run("RoundTrip", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		if err := SaveVersioned(store, "pending_set", 1, payload{Titles: []string{"Berserk"}}); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		got, found, err := LoadVersioned[payload](store, "pending_set", 1)
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if !found || len(got.Titles) != 1 || got.Titles[0] != "Berserk" {
			t.Errorf("unexpected payload: found=%v %+v", found, got)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, found, err := LoadVersioned[payload](NewKVStore(db), "pending_set", 1)
		if err != nil || found {
			t.Errorf("expected missing key, got found=%v err=%v", found, err)
		}
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		if err := store.Set("pending_set", `{"version":7,"data":{}}`); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		_, _, err := LoadVersioned[payload](store, "pending_set", 1)
		if !errors.Is(err, shared.ErrUnsupportedVersion) {
			t.Errorf("expected ErrUnsupportedVersion, got %v", err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		store := NewKVStore(db)
		if err := store.Set("pending_set", `not json`); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		if _, _, err := LoadVersioned[payload](store, "pending_set", 1); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
