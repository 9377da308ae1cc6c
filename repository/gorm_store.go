package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tarot-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// preferenceRow stores the preferences document with its expiry lifted
// into an indexed column for the expiry sweep
type preferenceRow struct {
	InstallationID uuid.UUID              `gorm:"type:text;primaryKey"`
	Data           models.UserPreferences `gorm:"type:text;not null"`
	PremiumExpiry  *int64                 `gorm:"index"`
	UpdatedAt      time.Time
}

func (preferenceRow) TableName() string {
	return "preferences"
}

// GormStore implements the stores on an embedded SQLite database
type GormStore struct {
	db         *gorm.DB
	historyCap int
}

// OpenSQLite opens (and migrates) the SQLite database at path
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = filepath.Join("data", "tarot.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go driver, no cgo
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&preferenceRow{}, &models.ReadingResult{}, &models.Installation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// NewGormStore wraps an opened database
func NewGormStore(db *gorm.DB, historyCap int) *GormStore {
	return &GormStore{db: db, historyCap: capOrDefault(historyCap)}
}

// Close closes the underlying connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Preferences
// ======================================================================================

// Load returns the stored preferences or defaults
func (s *GormStore) Load(ctx context.Context, installationID uuid.UUID) (models.UserPreferences, error) {
	var row preferenceRow
	err := s.db.WithContext(ctx).First(&row, "installation_id = ?", installationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.DefaultPreferences(), err
	}
	return row.Data, nil
}

// Save merges patch into the stored preferences
func (s *GormStore) Save(ctx context.Context, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	var saved models.UserPreferences
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, err = mergePreferencesGorm(tx, installationID, patch)
		return err
	})
	return saved, err
}

// mergePreferencesGorm reads, patches and writes the preferences row inside tx.
// An empty patch only reads.
func mergePreferencesGorm(tx *gorm.DB, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	row := preferenceRow{InstallationID: installationID, Data: models.DefaultPreferences()}
	err := tx.First(&row, "installation_id = ?", installationID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultPreferences(), err
	}
	if patch.IsEmpty() {
		return row.Data, nil
	}

	patch.Apply(&row.Data)
	row.PremiumExpiry = sweepableExpiry(row.Data)
	if err := tx.Save(&row).Error; err != nil {
		return models.DefaultPreferences(), err
	}
	return row.Data, nil
}

// ListExpiredPremium returns installations whose temporary grant ended before now
func (s *GormStore) ListExpiredPremium(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&preferenceRow{}).
		Where("premium_expiry IS NOT NULL AND premium_expiry < ?", now.UnixMilli()).
		Pluck("installation_id", &ids).Error
	return ids, err
}

// ======================================================================================
// History
// ======================================================================================

// List returns the reading log, most recent first
func (s *GormStore) List(ctx context.Context, installationID uuid.UUID) ([]models.ReadingResult, error) {
	return s.listReadings(s.db.WithContext(ctx), installationID)
}

// listReadings orders by rowid, which grows with every insert
func (s *GormStore) listReadings(tx *gorm.DB, installationID uuid.UUID) ([]models.ReadingResult, error) {
	readings := []models.ReadingResult{}
	err := tx.
		Where("installation_id = ?", installationID).
		Order("rowid desc").
		Limit(s.historyCap).
		Find(&readings).Error
	return readings, err
}

// Get returns one reading from the log
func (s *GormStore) Get(ctx context.Context, installationID uuid.UUID, readingID string) (*models.ReadingResult, error) {
	var reading models.ReadingResult
	err := s.db.WithContext(ctx).
		First(&reading, "installation_id = ? AND id = ?", installationID, readingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reading, nil
}

// Prepend stores a reading and trims the log in a single transaction
func (s *GormStore) Prepend(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, error) {
	var log []models.ReadingResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.prependReading(tx, installationID, reading); err != nil {
			return err
		}
		var err error
		log, err = s.listReadings(tx, installationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// RecordReading prepends the reading and applies patch in one transaction
func (s *GormStore) RecordReading(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult, patch models.PreferencesPatch) (*ReadingCommit, error) {
	commit := &ReadingCommit{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		evicted, err := s.prependReading(tx, installationID, reading)
		if err != nil {
			return err
		}
		if commit.Preferences, err = mergePreferencesGorm(tx, installationID, patch); err != nil {
			return err
		}
		if commit.History, err = s.listReadings(tx, installationID); err != nil {
			return err
		}
		commit.Evicted = evicted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// prependReading inserts reading and deletes the oldest entries beyond the
// cap, returning their ids
func (s *GormStore) prependReading(tx *gorm.DB, installationID uuid.UUID, reading models.ReadingResult) ([]string, error) {
	reading.InstallationID = installationID
	if err := tx.Create(&reading).Error; err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&models.ReadingResult{}).
		Where("installation_id = ?", installationID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count <= int64(s.historyCap) {
		return nil, nil
	}

	var stale []models.ReadingResult
	if err := tx.Where("installation_id = ?", installationID).
		Order("rowid asc").
		Limit(int(count) - s.historyCap).
		Find(&stale).Error; err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}
	if err := tx.Delete(&stale).Error; err != nil {
		return nil, err
	}

	evicted := make([]string, len(stale))
	for i, r := range stale {
		evicted[i] = r.ID
	}
	return evicted, nil
}

// ======================================================================================
// Installations
// ======================================================================================

// Create registers an installation
func (s *GormStore) Create(ctx context.Context, installation *models.Installation) error {
	return s.db.WithContext(ctx).Create(installation).Error
}

// GetByID returns a registered installation
func (s *GormStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Installation, error) {
	var inst models.Installation
	err := s.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// sweepableExpiry is the indexed expiry, set only while a temporary grant is active
func sweepableExpiry(prefs models.UserPreferences) *int64 {
	if !prefs.IsPremium || prefs.PremiumExpiry == nil {
		return nil
	}
	expiry := *prefs.PremiumExpiry
	return &expiry
}
