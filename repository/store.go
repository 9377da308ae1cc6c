package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tarot-backend/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// PreferenceStore persists one preferences record per installation.
// Load returns defaults for an installation that never saved anything.
// Save merges the patch into the stored record (last write wins per field)
// and returns the merged record.
type PreferenceStore interface {
	Load(ctx context.Context, installationID uuid.UUID) (models.UserPreferences, error)
	Save(ctx context.Context, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error)
	// ListExpiredPremium returns installations holding a temporary grant that ended before now
	ListExpiredPremium(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// HistoryStore persists the reading log, most recent first, capped at
// entitlement.HistoryLimit entries per installation.
type HistoryStore interface {
	List(ctx context.Context, installationID uuid.UUID) ([]models.ReadingResult, error)
	Get(ctx context.Context, installationID uuid.UUID, readingID string) (*models.ReadingResult, error)
	// Prepend adds reading at the head, trims the tail and returns the new log
	Prepend(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, error)
}

// ReadingCommit is what RecordReading wrote
type ReadingCommit struct {
	History     []models.ReadingResult
	Preferences models.UserPreferences
	// Evicted holds the ids of readings trimmed off the log
	Evicted []string
}

// ReadingRecorder stores a finished reading together with the preferences
// patch that follows it. Either both writes land or neither does.
// An empty patch leaves the preferences record untouched.
type ReadingRecorder interface {
	RecordReading(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult, patch models.PreferencesPatch) (*ReadingCommit, error)
}

// InstallationStore persists registered installations
type InstallationStore interface {
	Create(ctx context.Context, installation *models.Installation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Installation, error)
}

// Stores groups the backends used by the services
type Stores struct {
	Preferences   PreferenceStore
	History       HistoryStore
	Readings      ReadingRecorder
	Installations InstallationStore
	close         func() error
}

// Close releases the underlying connections
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Driver names a store backend
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// StoresConfig selects and configures a backend
type StoresConfig struct {
	Driver      Driver
	DatabaseURL string // For postgres
	SQLitePath  string // For sqlite
	HistoryCap  int
}

// NewStores opens the configured backend
func NewStores(ctx context.Context, cfg StoresConfig) (*Stores, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		mem := NewMemoryStore(cfg.HistoryCap)
		return &Stores{Preferences: mem, History: mem, Readings: mem, Installations: mem}, nil

	case DriverSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := NewGormStore(db, cfg.HistoryCap)
		return &Stores{
			Preferences:   store,
			History:       store,
			Readings:      store,
			Installations: store,
			close:         store.Close,
		}, nil

	case DriverPostgres:
		pool, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		history := NewHistoryRepository(pool, cfg.HistoryCap)
		return &Stores{
			Preferences:   NewPreferenceRepository(pool),
			History:       history,
			Readings:      history,
			Installations: NewInstallationRepository(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
