package repository

import (
	"context"
	"sync"
	"time"

	"tarot-backend/entitlement"
	"tarot-backend/models"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs local
// development and tests; nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	historyCap    int
	preferences   map[uuid.UUID]models.UserPreferences
	history       map[uuid.UUID][]models.ReadingResult
	installations map[uuid.UUID]models.Installation
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore(historyCap int) *MemoryStore {
	return &MemoryStore{
		historyCap:    capOrDefault(historyCap),
		preferences:   make(map[uuid.UUID]models.UserPreferences),
		history:       make(map[uuid.UUID][]models.ReadingResult),
		installations: make(map[uuid.UUID]models.Installation),
	}
}

func capOrDefault(n int) int {
	if n <= 0 {
		return entitlement.HistoryLimit
	}
	return n
}

// Load returns the stored preferences or defaults
func (s *MemoryStore) Load(ctx context.Context, installationID uuid.UUID) (models.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.preferences[installationID]
	if !ok {
		return models.DefaultPreferences(), nil
	}
	return clonePreferences(prefs), nil
}

// Save merges patch into the stored preferences
func (s *MemoryStore) Save(ctx context.Context, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clonePreferences(s.mergeLocked(installationID, patch)), nil
}

func (s *MemoryStore) mergeLocked(installationID uuid.UUID, patch models.PreferencesPatch) models.UserPreferences {
	prefs, ok := s.preferences[installationID]
	if !ok {
		prefs = models.DefaultPreferences()
	}
	patch.Apply(&prefs)
	s.preferences[installationID] = clonePreferences(prefs)
	return prefs
}

// ListExpiredPremium scans for temporary grants past their expiry
func (s *MemoryStore) ListExpiredPremium(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, prefs := range s.preferences {
		if prefs.IsPremium && prefs.PremiumExpiry != nil && *prefs.PremiumExpiry < now.UnixMilli() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// List returns the reading log, most recent first
func (s *MemoryStore) List(ctx context.Context, installationID uuid.UUID) ([]models.ReadingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ReadingResult, len(s.history[installationID]))
	copy(out, s.history[installationID])
	return out, nil
}

// Get returns one reading from the log
func (s *MemoryStore) Get(ctx context.Context, installationID uuid.UUID, readingID string) (*models.ReadingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.history[installationID] {
		if r.ID == readingID {
			reading := r
			return &reading, nil
		}
	}
	return nil, ErrNotFound
}

// Prepend adds a reading at the head of the log and trims the tail
func (s *MemoryStore) Prepend(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, _ := s.prependLocked(installationID, reading)
	return log, nil
}

// RecordReading prepends the reading and applies patch under one lock
func (s *MemoryStore) RecordReading(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult, patch models.PreferencesPatch) (*ReadingCommit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, evicted := s.prependLocked(installationID, reading)

	prefs, ok := s.preferences[installationID]
	if !ok {
		prefs = models.DefaultPreferences()
	}
	if !patch.IsEmpty() {
		prefs = s.mergeLocked(installationID, patch)
	}

	return &ReadingCommit{
		History:     log,
		Preferences: clonePreferences(prefs),
		Evicted:     evicted,
	}, nil
}

// prependLocked returns a copy of the new log and the ids trimmed off it
func (s *MemoryStore) prependLocked(installationID uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, []string) {
	reading.InstallationID = installationID
	log := append([]models.ReadingResult{reading}, s.history[installationID]...)

	var evicted []string
	if len(log) > s.historyCap {
		for _, r := range log[s.historyCap:] {
			evicted = append(evicted, r.ID)
		}
		log = log[:s.historyCap]
	}
	s.history[installationID] = log

	out := make([]models.ReadingResult, len(log))
	copy(out, log)
	return out, evicted
}

// Create registers an installation
func (s *MemoryStore) Create(ctx context.Context, installation *models.Installation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = time.Now()
	}
	s.installations[installation.ID] = *installation
	return nil
}

// GetByID returns a registered installation
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.installations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inst, nil
}

func clonePreferences(p models.UserPreferences) models.UserPreferences {
	if p.PremiumExpiry != nil {
		expiry := *p.PremiumExpiry
		p.PremiumExpiry = &expiry
	}
	if p.CachedHoroscope != nil {
		cache := *p.CachedHoroscope
		p.CachedHoroscope = &cache
	}
	return p
}
