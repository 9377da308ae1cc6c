package repository

import (
	"context"
	"errors"

	"tarot-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HistoryRepository handles database operations for the reading log
type HistoryRepository struct {
	db         *pgxpool.Pool
	historyCap int
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *pgxpool.Pool, historyCap int) *HistoryRepository {
	return &HistoryRepository{db: db, historyCap: capOrDefault(historyCap)}
}

// List retrieves the reading log, most recent first
func (r *HistoryRepository) List(ctx context.Context, installationID uuid.UUID) ([]models.ReadingResult, error) {
	return r.listReadings(ctx, r.db, installationID)
}

// listReadings orders by seq, the insertion order
func (r *HistoryRepository) listReadings(ctx context.Context, q querier, installationID uuid.UUID) ([]models.ReadingResult, error) {
	query := `
		SELECT id, installation_id, "timestamp", question, cards, interpretation
		FROM readings
		WHERE installation_id = $1
		ORDER BY seq DESC
		LIMIT $2`

	rows, err := q.Query(ctx, query, installationID, r.historyCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []models.ReadingResult{}
	for rows.Next() {
		var reading models.ReadingResult
		err := rows.Scan(
			&reading.ID,
			&reading.InstallationID,
			&reading.Timestamp,
			&reading.Question,
			&reading.Cards,
			&reading.Interpretation,
		)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}

	return readings, rows.Err()
}

// Get retrieves one reading
func (r *HistoryRepository) Get(ctx context.Context, installationID uuid.UUID, readingID string) (*models.ReadingResult, error) {
	reading := &models.ReadingResult{}
	query := `
		SELECT id, installation_id, "timestamp", question, cards, interpretation
		FROM readings
		WHERE installation_id = $1 AND id = $2`

	err := r.db.QueryRow(ctx, query, installationID, readingID).Scan(
		&reading.ID,
		&reading.InstallationID,
		&reading.Timestamp,
		&reading.Question,
		&reading.Cards,
		&reading.Interpretation,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return reading, nil
}

// Prepend inserts a reading and deletes everything beyond the cap
func (r *HistoryRepository) Prepend(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult) ([]models.ReadingResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := r.prependReading(ctx, tx, installationID, reading); err != nil {
		return nil, err
	}
	log, err := r.listReadings(ctx, tx, installationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return log, nil
}

// RecordReading prepends the reading and merges patch into the preferences
// row in one transaction
func (r *HistoryRepository) RecordReading(ctx context.Context, installationID uuid.UUID, reading models.ReadingResult, patch models.PreferencesPatch) (*ReadingCommit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	evicted, err := r.prependReading(ctx, tx, installationID, reading)
	if err != nil {
		return nil, err
	}
	prefs, err := mergePreferences(ctx, tx, installationID, patch)
	if err != nil {
		return nil, err
	}
	log, err := r.listReadings(ctx, tx, installationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ReadingCommit{History: log, Preferences: prefs, Evicted: evicted}, nil
}

// prependReading inserts reading and deletes the entries beyond the cap,
// returning their ids
func (r *HistoryRepository) prependReading(ctx context.Context, tx pgx.Tx, installationID uuid.UUID, reading models.ReadingResult) ([]string, error) {
	insert := `
		INSERT INTO readings (id, installation_id, "timestamp", question, cards, interpretation)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, insert,
		reading.ID,
		installationID,
		reading.Timestamp,
		reading.Question,
		reading.Cards,
		reading.Interpretation,
	)
	if err != nil {
		return nil, err
	}

	trim := `
		DELETE FROM readings
		WHERE installation_id = $1 AND id IN (
			SELECT id FROM readings
			WHERE installation_id = $1
			ORDER BY seq DESC
			OFFSET $2
		)
		RETURNING id`

	rows, err := tx.Query(ctx, trim, installationID, r.historyCap)
	if err != nil {
		return nil, err
	}
	evicted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return evicted, nil
}
