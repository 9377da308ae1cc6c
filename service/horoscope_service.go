package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tarot-backend/entitlement"
	"tarot-backend/metrics"
	"tarot-backend/models"
	"tarot-backend/repository"
	"tarot-backend/zodiac"

	"github.com/google/uuid"
)

// HoroscopeFallbackText is shown when the writer fails; it is never cached
const HoroscopeFallbackText = "Não foi possível ler as estrelas agora."

// HoroscopeService serves the daily horoscope with a one-day cache
type HoroscopeService struct {
	preferences repository.PreferenceStore
	writer      HoroscopeWriter
	location    *time.Location
	logger      *slog.Logger
}

// HoroscopeServiceOption is a functional option for HoroscopeService
type HoroscopeServiceOption func(*HoroscopeService)

// HoroscopeWithPreferenceStore sets the preference store
func HoroscopeWithPreferenceStore(store repository.PreferenceStore) HoroscopeServiceOption {
	return func(s *HoroscopeService) {
		s.preferences = store
	}
}

// HoroscopeWithWriter sets the horoscope provider
func HoroscopeWithWriter(writer HoroscopeWriter) HoroscopeServiceOption {
	return func(s *HoroscopeService) {
		s.writer = writer
	}
}

// HoroscopeWithLocation sets the zone used when a request carries none
func HoroscopeWithLocation(loc *time.Location) HoroscopeServiceOption {
	return func(s *HoroscopeService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// HoroscopeWithLogger sets the logger
func HoroscopeWithLogger(logger *slog.Logger) HoroscopeServiceOption {
	return func(s *HoroscopeService) {
		s.logger = logger
	}
}

// NewHoroscopeService creates a new horoscope service
func NewHoroscopeService(opts ...HoroscopeServiceOption) *HoroscopeService {
	s := &HoroscopeService{
		location: time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBirthDate validates and stores the birth date. A horoscope already
// cached for today stays until the day rolls over, even for a new date.
func (s *HoroscopeService) SetBirthDate(ctx context.Context, installationID uuid.UUID, birthDate string) (models.UserPreferences, error) {
	if s.preferences == nil {
		return models.UserPreferences{}, errors.New("preference store not set")
	}

	birthDate = strings.TrimSpace(birthDate)
	if _, err := zodiac.ParseBirthDate(birthDate); err != nil {
		return models.UserPreferences{}, fmt.Errorf("%w: %v", ErrInvalidBirthDate, err)
	}

	current, err := s.preferences.Load(ctx, installationID)
	if err != nil {
		return models.UserPreferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if current.BirthDate == birthDate {
		return current, nil
	}

	return s.preferences.Save(ctx, installationID, models.PreferencesPatch{BirthDate: models.String(birthDate)})
}

// HoroscopeRequest represents a request for today's horoscope
type HoroscopeRequest struct {
	InstallationID uuid.UUID
	Now            time.Time
	// Location decides which calendar day is "today"; nil uses the service zone
	Location *time.Location
}

// HoroscopeResult represents today's horoscope
type HoroscopeResult struct {
	Sign     string `json:"sign"`
	Date     string `json:"date"`
	Content  string `json:"content"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback"`
	Premium  bool   `json:"premium"`
}

// Horoscope returns today's cached horoscope or writes and caches a new one
func (s *HoroscopeService) Horoscope(ctx context.Context, req HoroscopeRequest) (*HoroscopeResult, error) {
	if s.preferences == nil {
		return nil, errors.New("preference store not set")
	}
	if s.writer == nil {
		return nil, errors.New("horoscope writer not set")
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := req.Location
	if loc == nil {
		loc = s.location
	}

	prefs, err := refreshPreferences(ctx, s.preferences, req.InstallationID, now)
	if err != nil {
		return nil, err
	}
	if prefs.BirthDate == "" {
		return nil, ErrMissingBirthDate
	}

	sign, err := zodiac.SignForBirthDate(prefs.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBirthDate, err)
	}

	today := entitlement.CalendarDay(now, loc)
	result := &HoroscopeResult{
		Sign:    sign,
		Date:    today,
		Premium: prefs.IsPremium,
	}

	if entitlement.HoroscopeCacheValid(prefs.CachedHoroscope, today) {
		metrics.HoroscopeCacheTotal.WithLabelValues("hit").Inc()
		result.Content = prefs.CachedHoroscope.Content
		result.Cached = true
		return result, nil
	}
	metrics.HoroscopeCacheTotal.WithLabelValues("miss").Inc()

	content, err := s.writer.WriteHoroscope(ctx, sign, prefs.BirthDate, prefs.IsPremium)
	if err == nil && strings.TrimSpace(content) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.HoroscopeCacheTotal.WithLabelValues("fallback").Inc()
		s.logger.Warn("Horoscope writer failed, serving fallback",
			slog.String("installation_id", req.InstallationID.String()),
			slog.Any("error", err))
		result.Content = HoroscopeFallbackText
		result.Fallback = true
		return result, nil
	}

	if _, err := s.preferences.Save(ctx, req.InstallationID, models.PreferencesPatch{
		CachedHoroscope: &models.HoroscopeCache{Date: today, Content: content},
	}); err != nil {
		return nil, fmt.Errorf("failed to cache horoscope: %w", err)
	}

	result.Content = content
	return result, nil
}
