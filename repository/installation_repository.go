package repository

import (
	"context"
	"errors"

	"tarot-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InstallationRepository handles database operations for installations
type InstallationRepository struct {
	db *pgxpool.Pool
}

// NewInstallationRepository creates a new installation repository
func NewInstallationRepository(db *pgxpool.Pool) *InstallationRepository {
	return &InstallationRepository{db: db}
}

// Create inserts a new installation
func (r *InstallationRepository) Create(ctx context.Context, installation *models.Installation) error {
	query := `
		INSERT INTO installations (id, secret_hash)
		VALUES ($1, $2)
		RETURNING created_at`

	return r.db.QueryRow(ctx, query, installation.ID, installation.SecretHash).Scan(&installation.CreatedAt)
}

// GetByID retrieves an installation by ID
func (r *InstallationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Installation, error) {
	installation := &models.Installation{}
	query := `
		SELECT id, secret_hash, created_at
		FROM installations
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&installation.ID,
		&installation.SecretHash,
		&installation.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return installation, nil
}
