package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tarot-backend/entitlement"
	"tarot-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testStore interface {
	PreferenceStore
	HistoryStore
	ReadingRecorder
	InstallationStore
}

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := NewGormStore(db, 0)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func forEachStore(t *testing.T, fn func(t *testing.T, store testStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(0))
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, setupGormStore(t))
	})
	t.Run("postgres", func(t *testing.T) {
		fn(t, setupPostgresStore(t))
	})
}

func reading(n int, ts time.Time) models.ReadingResult {
	id, _ := uuid.NewV7()
	return models.ReadingResult{
		ID:        id.String(),
		Timestamp: ts.UnixMilli(),
		Question:  fmt.Sprintf("question %d", n),
		Cards: models.DrawnCards{
			{TarotCard: models.TarotCard{ID: "major-0", Name: "O Louco"}, Position: models.PositionPast},
		},
		Interpretation: fmt.Sprintf("answer %d", n),
	}
}

func TestPreferencesDefaults(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		prefs, err := store.Load(context.Background(), uuid.New())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if prefs != models.DefaultPreferences() {
			t.Errorf("expected defaults, got %+v", prefs)
		}
	})
}

func TestPreferencesSaveMerges(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()

		if _, err := store.Save(ctx, id, models.PreferencesPatch{BirthDate: models.String("1990-07-15")}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		saved, err := store.Save(ctx, id, models.PreferencesPatch{LastReadingTime: models.Int64(1234)})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if saved.BirthDate != "1990-07-15" || saved.LastReadingTime != 1234 {
			t.Errorf("expected merged record, got %+v", saved)
		}

		loaded, err := store.Load(ctx, id)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.BirthDate != "1990-07-15" || loaded.LastReadingTime != 1234 {
			t.Errorf("expected persisted record, got %+v", loaded)
		}

		// other installations are untouched
		other, _ := store.Load(ctx, uuid.New())
		if other.BirthDate != "" {
			t.Error("preferences leaked across installations")
		}
	})
}

func TestPreferencesHoroscopeCache(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()

		cache := &models.HoroscopeCache{Date: "2025-03-10", Content: "Dia de boas notícias."}
		if _, err := store.Save(ctx, id, models.PreferencesPatch{CachedHoroscope: cache}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, _ := store.Load(ctx, id)
		if loaded.CachedHoroscope == nil || *loaded.CachedHoroscope != *cache {
			t.Errorf("expected cached horoscope, got %+v", loaded.CachedHoroscope)
		}
	})
}

func TestListExpiredPremium(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		expired := uuid.New()
		active := uuid.New()
		permanent := uuid.New()

		store.Save(ctx, expired, models.PreferencesPatch{
			IsPremium:     models.Bool(true),
			PremiumExpiry: models.Int64(now.Add(-time.Minute).UnixMilli()),
		})
		store.Save(ctx, active, models.PreferencesPatch{
			IsPremium:     models.Bool(true),
			PremiumExpiry: models.Int64(now.Add(time.Minute).UnixMilli()),
		})
		store.Save(ctx, permanent, entitlement.Subscribe())

		ids, err := store.ListExpiredPremium(ctx, now)
		if err != nil {
			t.Fatalf("ListExpiredPremium failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != expired {
			t.Errorf("expected only %s, got %v", expired, ids)
		}

		// once revoked it no longer shows up
		store.Save(ctx, expired, models.PreferencesPatch{IsPremium: models.Bool(false), ClearPremiumExpiry: true})
		ids, _ = store.ListExpiredPremium(ctx, now)
		if len(ids) != 0 {
			t.Errorf("expected no expired grants, got %v", ids)
		}
	})
}

func TestHistoryPrependOrderAndCap(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()
		start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		var log []models.ReadingResult
		var err error
		for i := 0; i < entitlement.HistoryLimit+3; i++ {
			log, err = store.Prepend(ctx, id, reading(i, start.Add(time.Duration(i)*time.Minute)))
			if err != nil {
				t.Fatalf("Prepend %d failed: %v", i, err)
			}
		}

		if len(log) != entitlement.HistoryLimit {
			t.Fatalf("expected %d readings, got %d", entitlement.HistoryLimit, len(log))
		}
		if log[0].Question != "question 12" {
			t.Errorf("expected newest first, got %s", log[0].Question)
		}
		if log[len(log)-1].Question != "question 3" {
			t.Errorf("expected oldest kept to be question 3, got %s", log[len(log)-1].Question)
		}
		for i := 1; i < len(log); i++ {
			if log[i-1].Timestamp < log[i].Timestamp {
				t.Fatalf("log not ordered most recent first at %d", i)
			}
		}

		listed, err := store.List(ctx, id)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(listed) != len(log) || listed[0].ID != log[0].ID {
			t.Error("List disagrees with Prepend result")
		}
		if len(listed[0].Cards) != 1 || listed[0].Cards[0].Name != "O Louco" {
			t.Errorf("cards not round-tripped: %+v", listed[0].Cards)
		}
	})
}

func TestHistoryGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()
		r := reading(1, time.Now())

		if _, err := store.Prepend(ctx, id, r); err != nil {
			t.Fatalf("Prepend failed: %v", err)
		}

		got, err := store.Get(ctx, id, r.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Question != r.Question {
			t.Errorf("expected %s, got %s", r.Question, got.Question)
		}

		if _, err := store.Get(ctx, uuid.New(), r.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for another installation, got %v", err)
		}
	})
}

func TestHistoryOrderIsInsertionOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		later := reading(1, now)
		// a client clock running behind still lands at the head
		earlier := reading(2, now.Add(-time.Hour))

		store.Prepend(ctx, id, later)
		log, err := store.Prepend(ctx, id, earlier)
		if err != nil {
			t.Fatalf("Prepend failed: %v", err)
		}
		if len(log) != 2 || log[0].ID != earlier.ID {
			t.Fatalf("expected last inserted reading first, got %+v", log)
		}

		listed, _ := store.List(ctx, id)
		if listed[0].ID != earlier.ID {
			t.Errorf("List head = %s, want %s", listed[0].ID, earlier.ID)
		}
	})
}

func TestRecordReading(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		id := uuid.New()
		start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		store.Save(ctx, id, models.PreferencesPatch{BirthDate: models.String("1990-07-15")})

		var ids []string
		var commit *ReadingCommit
		for i := 0; i <= entitlement.HistoryLimit; i++ {
			ts := start.Add(time.Duration(i) * time.Minute)
			r := reading(i, ts)
			ids = append(ids, r.ID)

			var err error
			commit, err = store.RecordReading(ctx, id, r, models.PreferencesPatch{LastReadingTime: models.Int64(ts.UnixMilli())})
			if err != nil {
				t.Fatalf("RecordReading %d failed: %v", i, err)
			}
			if i < entitlement.HistoryLimit && len(commit.Evicted) != 0 {
				t.Fatalf("reading %d evicted %v before the log was full", i, commit.Evicted)
			}
		}

		last := start.Add(time.Duration(entitlement.HistoryLimit) * time.Minute).UnixMilli()
		if len(commit.Evicted) != 1 || commit.Evicted[0] != ids[0] {
			t.Errorf("evicted = %v, want [%s]", commit.Evicted, ids[0])
		}
		if len(commit.History) != entitlement.HistoryLimit || commit.History[0].ID != ids[len(ids)-1] {
			t.Errorf("history head = %+v", commit.History[0])
		}
		if commit.Preferences.LastReadingTime != last || commit.Preferences.BirthDate != "1990-07-15" {
			t.Errorf("preferences = %+v", commit.Preferences)
		}

		loaded, _ := store.Load(ctx, id)
		if loaded.LastReadingTime != last {
			t.Errorf("stored lastReadingTime = %d, want %d", loaded.LastReadingTime, last)
		}

		// an empty patch only prepends
		commit, err := store.RecordReading(ctx, id, reading(99, start), models.PreferencesPatch{})
		if err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
		if commit.Preferences.LastReadingTime != last || commit.History[0].Question != "question 99" {
			t.Errorf("empty patch commit = %+v", commit)
		}
	})
}

func TestGormRecordReadingRollsBack(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()
	id := uuid.New()

	failPrefs := func(db *gorm.DB) {
		if db.Statement.Table == "preferences" {
			db.AddError(errors.New("db down"))
		}
	}
	if err := store.db.Callback().Create().Before("gorm:create").Register("test:fail_prefs", failPrefs); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	if err := store.db.Callback().Update().Before("gorm:update").Register("test:fail_prefs", failPrefs); err != nil {
		t.Fatalf("register update callback: %v", err)
	}

	_, err := store.RecordReading(ctx, id, reading(1, time.Now()), models.PreferencesPatch{LastReadingTime: models.Int64(1234)})
	if err == nil {
		t.Fatal("expected the preferences write to fail")
	}

	log, err := store.List(ctx, id)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("reading kept after a failed commit: %+v", log)
	}
}

func TestInstallations(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		inst := &models.Installation{ID: uuid.New(), SecretHash: "hash"}

		if err := store.Create(ctx, inst); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := store.GetByID(ctx, inst.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.SecretHash != "hash" {
			t.Errorf("expected hash, got %s", got.SecretHash)
		}

		if _, err := store.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNewStoresUnknownDriver(t *testing.T) {
	if _, err := NewStores(context.Background(), StoresConfig{Driver: "mongo"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
