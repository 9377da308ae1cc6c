package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tarot-backend/entitlement"
	"tarot-backend/locale"
	"tarot-backend/metrics"
	"tarot-backend/models"
	"tarot-backend/repository"
	"tarot-backend/storage"
	"tarot-backend/tarot"

	"github.com/google/uuid"
)

// MaxQuestionLength is the longest accepted question, in characters
const MaxQuestionLength = 200

// ShareExcerptLength is how much of the interpretation a share text quotes
const ShareExcerptLength = 100

// ReadingService runs the reading flow: validation, cooldown gate, draw,
// interpretation and the state updates that follow a successful reading
type ReadingService struct {
	preferences repository.PreferenceStore
	history     repository.HistoryStore
	recorder    repository.ReadingRecorder
	clips       storage.Storage
	interpreter Interpreter
	notifier    Notifier
	source      tarot.Source
	offerDelay  time.Duration
	logger      *slog.Logger

	gate *inflight

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
}

// ReadingServiceOption is a functional option for ReadingService
type ReadingServiceOption func(*ReadingService)

// ReadingWithPreferenceStore sets the preference store
func ReadingWithPreferenceStore(store repository.PreferenceStore) ReadingServiceOption {
	return func(s *ReadingService) {
		s.preferences = store
	}
}

// ReadingWithHistoryStore sets the history store
func ReadingWithHistoryStore(store repository.HistoryStore) ReadingServiceOption {
	return func(s *ReadingService) {
		s.history = store
	}
}

// ReadingWithRecorder sets the store that commits a finished reading
func ReadingWithRecorder(recorder repository.ReadingRecorder) ReadingServiceOption {
	return func(s *ReadingService) {
		s.recorder = recorder
	}
}

// ReadingWithClipStorage sets where narration clips live, so clips of
// readings trimmed off the log are removed
func ReadingWithClipStorage(clips storage.Storage) ReadingServiceOption {
	return func(s *ReadingService) {
		s.clips = clips
	}
}

// ReadingWithInterpreter sets the interpretation provider
func ReadingWithInterpreter(interpreter Interpreter) ReadingServiceOption {
	return func(s *ReadingService) {
		s.interpreter = interpreter
	}
}

// ReadingWithNotifier sets where rating offers are delivered
func ReadingWithNotifier(notifier Notifier) ReadingServiceOption {
	return func(s *ReadingService) {
		s.notifier = notifier
	}
}

// ReadingWithSource sets the randomness used for draws
func ReadingWithSource(source tarot.Source) ReadingServiceOption {
	return func(s *ReadingService) {
		s.source = source
	}
}

// ReadingWithOfferDelay overrides the rating offer delay
func ReadingWithOfferDelay(delay time.Duration) ReadingServiceOption {
	return func(s *ReadingService) {
		s.offerDelay = delay
	}
}

// ReadingWithLogger sets the logger
func ReadingWithLogger(logger *slog.Logger) ReadingServiceOption {
	return func(s *ReadingService) {
		s.logger = logger
	}
}

// NewReadingService creates a new reading service
func NewReadingService(opts ...ReadingServiceOption) *ReadingService {
	s := &ReadingService{
		source:     tarot.DefaultSource,
		offerDelay: entitlement.RatingOfferDelay,
		logger:     slog.Default(),
		gate:       newInflight(),
		timers:     make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestReadingRequest represents a request for a new reading
type RequestReadingRequest struct {
	InstallationID uuid.UUID
	Question       string
	Now            time.Time
}

// RequestReadingResult represents a completed reading
type RequestReadingResult struct {
	Reading     models.ReadingResult
	History     []models.ReadingResult
	Preferences models.UserPreferences
	// RatingOfferIn is when the rating offer will be pushed; zero for none
	RatingOfferIn time.Duration
}

// RequestReading validates the question, enforces the cooldown, draws three
// cards and asks for an interpretation. Nothing is written unless the
// interpretation succeeds.
func (s *ReadingService) RequestReading(ctx context.Context, req RequestReadingRequest) (*RequestReadingResult, error) {
	if s.preferences == nil || s.history == nil || s.recorder == nil {
		return nil, errors.New("reading stores not set")
	}
	if s.interpreter == nil {
		return nil, errors.New("interpreter not set")
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		metrics.ReadingsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		metrics.ReadingsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrQuestionTooLong
	}

	if !s.gate.acquire(req.InstallationID) {
		metrics.ReadingsTotal.WithLabelValues("busy").Inc()
		return nil, ErrReadingInProgress
	}
	defer s.gate.release(req.InstallationID)

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Re-read: another session may have changed entitlements
	prefs, err := refreshPreferences(ctx, s.preferences, req.InstallationID, now)
	if err != nil {
		return nil, err
	}

	if remaining := entitlement.CooldownRemaining(prefs, now); remaining > 0 {
		metrics.ReadingsTotal.WithLabelValues("cooldown").Inc()
		return nil, &CooldownError{Remaining: remaining}
	}

	previous, err := s.history.List(ctx, req.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	cards := tarot.Draw(s.source)

	interpretation, err := s.interpreter.Interpret(ctx, question, cards)
	if err != nil {
		metrics.ReadingsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Interpretation failed",
			slog.String("installation_id", req.InstallationID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrInterpretationFailed, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reading id: %w", err)
	}

	reading := models.ReadingResult{
		ID:             id.String(),
		InstallationID: req.InstallationID,
		Timestamp:      now.UnixMilli(),
		Question:       question,
		Cards:          cards,
		Interpretation: interpretation,
	}

	commit, err := s.recorder.RecordReading(ctx, req.InstallationID, reading, entitlement.RecordReading(prefs, now))
	if err != nil {
		return nil, fmt.Errorf("failed to save reading: %w", err)
	}
	s.dropClips(ctx, req.InstallationID, commit.Evicted)

	result := &RequestReadingResult{
		Reading:     reading,
		History:     commit.History,
		Preferences: commit.Preferences,
	}

	if entitlement.QualifiesForRatingOffer(prefs, len(previous) == 0) {
		result.RatingOfferIn = s.offerDelay
		s.scheduleRatingOffer(req.InstallationID)
	}

	metrics.ReadingsTotal.WithLabelValues("served").Inc()
	s.logger.Info("Reading served",
		slog.String("installation_id", req.InstallationID.String()),
		slog.String("reading_id", reading.ID),
		slog.Bool("premium", prefs.IsPremium))

	return result, nil
}

// dropClips deletes the narration clips of evicted readings. Failures only
// leave an orphaned clip behind, so they are logged.
func (s *ReadingService) dropClips(ctx context.Context, installationID uuid.UUID, readingIDs []string) {
	if s.clips == nil {
		return
	}
	for _, readingID := range readingIDs {
		if err := s.clips.Delete(ctx, storage.NarrationKey(installationID, readingID)); err != nil {
			s.logger.Warn("Failed to delete narration clip",
				slog.String("installation_id", installationID.String()),
				slog.String("reading_id", readingID),
				slog.Any("error", err))
		}
	}
}

func (s *ReadingService) scheduleRatingOffer(installationID uuid.UUID) {
	if s.notifier == nil {
		return
	}

	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if s.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.offerDelay, func() {
		s.timersMu.Lock()
		delete(s.timers, timer)
		s.timersMu.Unlock()

		s.notifier.Notify(installationID, Event{Type: EventRatingOffer, Message: locale.RatingOffer})
	})
	s.timers[timer] = struct{}{}
}

// Close cancels pending rating offers
func (s *ReadingService) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}

// History returns the reading log, most recent first
func (s *ReadingService) History(ctx context.Context, installationID uuid.UUID) ([]models.ReadingResult, error) {
	if s.history == nil {
		return nil, errors.New("history store not set")
	}
	return s.history.List(ctx, installationID)
}

// Reading returns one reading from the log
func (s *ReadingService) Reading(ctx context.Context, installationID uuid.UUID, readingID string) (*models.ReadingResult, error) {
	if s.history == nil {
		return nil, errors.New("history store not set")
	}

	reading, err := s.history.Get(ctx, installationID, readingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReadingNotFound
	}
	return reading, err
}

// ShareExcerpt returns the start of an interpretation for share texts
func ShareExcerpt(interpretation string) string {
	runes := []rune(interpretation)
	if len(runes) <= ShareExcerptLength {
		return interpretation
	}
	return string(runes[:ShareExcerptLength])
}

// refreshPreferences loads preferences and revokes an expired temporary grant
func refreshPreferences(ctx context.Context, store repository.PreferenceStore, installationID uuid.UUID, now time.Time) (models.UserPreferences, error) {
	prefs, err := store.Load(ctx, installationID)
	if err != nil {
		return prefs, fmt.Errorf("failed to load preferences: %w", err)
	}

	patch, expired := entitlement.CheckExpiry(prefs, now)
	if !expired {
		return prefs, nil
	}

	prefs, err = store.Save(ctx, installationID, patch)
	if err != nil {
		return prefs, fmt.Errorf("failed to revoke expired premium: %w", err)
	}
	metrics.PremiumTransitionsTotal.WithLabelValues("expired").Inc()
	return prefs, nil
}
