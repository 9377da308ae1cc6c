package repository

import (
	"context"
	"errors"
	"time"

	"tarot-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PreferenceRepository handles database operations for preferences
type PreferenceRepository struct {
	db *pgxpool.Pool
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Load retrieves the preferences of an installation, defaults when none are stored
func (r *PreferenceRepository) Load(ctx context.Context, installationID uuid.UUID) (models.UserPreferences, error) {
	prefs := models.DefaultPreferences()
	query := `SELECT data FROM preferences WHERE installation_id = $1`

	err := r.db.QueryRow(ctx, query, installationID).Scan(&prefs)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.DefaultPreferences(), err
	}

	return prefs, nil
}

// Save merges patch into the stored preferences
func (r *PreferenceRepository) Save(ctx context.Context, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.DefaultPreferences(), err
	}
	defer tx.Rollback(ctx)

	prefs, err := mergePreferences(ctx, tx, installationID, patch)
	if err != nil {
		return models.DefaultPreferences(), err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DefaultPreferences(), err
	}

	return prefs, nil
}

// mergePreferences locks the row, applies patch and upserts it inside tx.
// An empty patch only reads.
func mergePreferences(ctx context.Context, tx pgx.Tx, installationID uuid.UUID, patch models.PreferencesPatch) (models.UserPreferences, error) {
	prefs := models.DefaultPreferences()
	err := tx.QueryRow(ctx, `SELECT data FROM preferences WHERE installation_id = $1 FOR UPDATE`, installationID).Scan(&prefs)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultPreferences(), err
	}
	if patch.IsEmpty() {
		return prefs, nil
	}

	patch.Apply(&prefs)

	query := `
		INSERT INTO preferences (installation_id, data, premium_expiry, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (installation_id) DO UPDATE SET
			data = EXCLUDED.data,
			premium_expiry = EXCLUDED.premium_expiry,
			updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, installationID, prefs, sweepableExpiry(prefs)); err != nil {
		return models.DefaultPreferences(), err
	}
	return prefs, nil
}

// ListExpiredPremium returns installations whose temporary grant ended before now
func (r *PreferenceRepository) ListExpiredPremium(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT installation_id
		FROM preferences
		WHERE premium_expiry IS NOT NULL AND premium_expiry < $1`

	rows, err := r.db.Query(ctx, query, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
