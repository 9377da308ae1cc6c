package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"tarot-backend/models"
	"tarot-backend/repository"

	"github.com/google/uuid"
)

var errProvider = errors.New("provider down")

type fakeInterpreter struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	// block, when set, holds Interpret until closed
	block chan struct{}
}

func (f *fakeInterpreter) Interpret(ctx context.Context, question string, cards []models.DrawnCard) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if f.text == "" {
		return "As cartas falam de recomeços.", nil
	}
	return f.text, nil
}

func (f *fakeInterpreter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWriter struct {
	mu       sync.Mutex
	text     string
	err      error
	calls    int
	premiums []bool
}

func (f *fakeWriter) WriteHoroscope(ctx context.Context, sign, birthDate string, premium bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.premiums = append(f.premiums, premium)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSynthesizer struct {
	mu      sync.Mutex
	samples []int16
	err     error
	calls   int
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (*models.AudioBuffer, error) {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.AudioBuffer{
		SampleRate: models.NarrationSampleRate,
		Channels:   models.NarrationChannels,
		Samples:    f.samples,
	}, nil
}

type recordedEvent struct {
	installationID uuid.UUID
	event          Event
}

type fakeNotifier struct {
	events chan recordedEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(chan recordedEvent, 8)}
}

func (f *fakeNotifier) Notify(installationID uuid.UUID, event Event) {
	f.events <- recordedEvent{installationID: installationID, event: event}
}

// fixedSource draws the first cards of the deck, never reversed
type fixedSource struct{}

func (fixedSource) IntN(n int) int   { return 0 }
func (fixedSource) Float64() float64 { return 0.99 }

var baseTime = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

// countingStore records writes on top of a memory store. A committed
// reading counts as a prepend, plus a save when it patches preferences.
type countingStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	saves    int
	prepends int
	// recordErr, when set, fails RecordReading before anything is written
	recordErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: repository.NewMemoryStore(0)}
}

func (s *countingStore) Save(ctx context.Context, id uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, id, patch)
}

func (s *countingStore) Prepend(ctx context.Context, id uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, error) {
	s.mu.Lock()
	s.prepends++
	s.mu.Unlock()
	return s.MemoryStore.Prepend(ctx, id, reading)
}

func (s *countingStore) RecordReading(ctx context.Context, id uuid.UUID, reading models.ReadingResult, patch models.PreferencesPatch) (*repository.ReadingCommit, error) {
	s.mu.Lock()
	if s.recordErr != nil {
		err := s.recordErr
		s.mu.Unlock()
		return nil, err
	}
	s.prepends++
	if !patch.IsEmpty() {
		s.saves++
	}
	s.mu.Unlock()
	return s.MemoryStore.RecordReading(ctx, id, reading, patch)
}

func (s *countingStore) writes() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.prepends
}
