package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tarot-backend/models"
	"tarot-backend/repository"

	"github.com/google/uuid"
)

func newTestHoroscopeService(store repository.PreferenceStore, writer *fakeWriter) *HoroscopeService {
	return NewHoroscopeService(
		HoroscopeWithPreferenceStore(store),
		HoroscopeWithWriter(writer),
		HoroscopeWithLocation(time.FixedZone("BRT", -3*60*60)),
	)
}

func TestSetBirthDate(t *testing.T) {
	store := repository.NewMemoryStore(0)
	svc := newTestHoroscopeService(store, &fakeWriter{})
	ctx := context.Background()
	id := uuid.New()

	for _, bad := range []string{"", "15/07/1990", "1990-02-30"} {
		if _, err := svc.SetBirthDate(ctx, id, bad); !errors.Is(err, ErrInvalidBirthDate) {
			t.Errorf("SetBirthDate(%q) err = %v, want ErrInvalidBirthDate", bad, err)
		}
	}

	prefs, err := svc.SetBirthDate(ctx, id, "1990-07-15")
	if err != nil {
		t.Fatalf("SetBirthDate: %v", err)
	}
	if prefs.BirthDate != "1990-07-15" {
		t.Errorf("birthDate = %q", prefs.BirthDate)
	}
}

func TestHoroscopeMissingBirthDate(t *testing.T) {
	writer := &fakeWriter{text: "Dia de sorte."}
	svc := newTestHoroscopeService(repository.NewMemoryStore(0), writer)

	_, err := svc.Horoscope(context.Background(), HoroscopeRequest{InstallationID: uuid.New(), Now: baseTime})
	if !errors.Is(err, ErrMissingBirthDate) {
		t.Errorf("err = %v, want ErrMissingBirthDate", err)
	}
	if writer.calls != 0 {
		t.Errorf("writer called %d times", writer.calls)
	}
}

func TestHoroscopeCachesForTheDay(t *testing.T) {
	store := repository.NewMemoryStore(0)
	writer := &fakeWriter{text: "As estrelas sorriem."}
	svc := newTestHoroscopeService(store, writer)
	ctx := context.Background()
	id := uuid.New()
	svc.SetBirthDate(ctx, id, "1990-07-15")

	first, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if first.Cached || first.Fallback || first.Sign != "Câncer" || first.Content != "As estrelas sorriem." {
		t.Errorf("first = %+v", first)
	}
	// 15:00 UTC is 12:00 in BRT
	if first.Date != "2026-03-10" {
		t.Errorf("date = %s, want 2026-03-10", first.Date)
	}

	writer.text = "Outro texto."
	second, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime.Add(8 * time.Hour)})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if !second.Cached || second.Content != "As estrelas sorriem." {
		t.Errorf("same-day call = %+v, want cached", second)
	}
	if writer.calls != 1 {
		t.Errorf("writer called %d times, want 1", writer.calls)
	}

	// 05:00 UTC the next day is past midnight in BRT
	next, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime.Add(14 * time.Hour)})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if next.Cached || next.Content != "Outro texto." || next.Date != "2026-03-11" {
		t.Errorf("next-day call = %+v", next)
	}
}

func TestHoroscopeRequestLocation(t *testing.T) {
	store := repository.NewMemoryStore(0)
	writer := &fakeWriter{text: "Bom dia."}
	svc := newTestHoroscopeService(store, writer)
	ctx := context.Background()
	id := uuid.New()
	svc.SetBirthDate(ctx, id, "1990-07-15")

	tokyo := time.FixedZone("JST", 9*60*60)
	res, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime, Location: tokyo})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if res.Date != "2026-03-11" {
		t.Errorf("date = %s, want 2026-03-11 in JST", res.Date)
	}
}

func TestHoroscopeFallbackIsNotCached(t *testing.T) {
	store := repository.NewMemoryStore(0)
	writer := &fakeWriter{err: errProvider}
	svc := newTestHoroscopeService(store, writer)
	ctx := context.Background()
	id := uuid.New()
	svc.SetBirthDate(ctx, id, "1990-07-15")

	res, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if !res.Fallback || res.Content != HoroscopeFallbackText {
		t.Errorf("res = %+v, want fallback", res)
	}

	prefs, _ := store.Load(ctx, id)
	if prefs.CachedHoroscope != nil {
		t.Errorf("fallback was cached: %+v", prefs.CachedHoroscope)
	}

	writer.err = nil
	writer.text = "Recuperado."
	res, _ = svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime.Add(time.Minute)})
	if res.Fallback || res.Content != "Recuperado." {
		t.Errorf("retry = %+v", res)
	}
}

func TestHoroscopePremiumVersion(t *testing.T) {
	store := repository.NewMemoryStore(0)
	writer := &fakeWriter{text: "Completo."}
	svc := newTestHoroscopeService(store, writer)
	ctx := context.Background()
	id := uuid.New()
	svc.SetBirthDate(ctx, id, "1990-07-15")
	store.Save(ctx, id, models.PreferencesPatch{IsPremium: models.Bool(true)})

	res, err := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime})
	if err != nil {
		t.Fatalf("Horoscope: %v", err)
	}
	if !res.Premium || len(writer.premiums) != 1 || !writer.premiums[0] {
		t.Errorf("premium flag not passed: res=%+v premiums=%v", res, writer.premiums)
	}
}

func TestSetBirthDateKeepsSameDayCache(t *testing.T) {
	store := repository.NewMemoryStore(0)
	writer := &fakeWriter{text: "Câncer hoje."}
	svc := newTestHoroscopeService(store, writer)
	ctx := context.Background()
	id := uuid.New()
	svc.SetBirthDate(ctx, id, "1990-07-15")
	svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime})

	writer.text = "Leão hoje."
	svc.SetBirthDate(ctx, id, "1990-08-10")
	res, _ := svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime})
	if !res.Cached || res.Content != "Câncer hoje." {
		t.Errorf("same day after new birth date = %+v, want stale cached content", res)
	}

	res, _ = svc.Horoscope(ctx, HoroscopeRequest{InstallationID: id, Now: baseTime.Add(24 * time.Hour)})
	if res.Cached || res.Sign != "Leão" || res.Content != "Leão hoje." {
		t.Errorf("next day = %+v", res)
	}
}
