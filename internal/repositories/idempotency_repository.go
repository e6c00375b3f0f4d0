package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository creates a MySQL backed idempotency record store
func NewIdempotencyRepository(db *sql.DB) *idempotencyRepository {
	return &idempotencyRepository{
		db: db,
	}
}

// Reserve inserts a pending record if (actor, key) is free.
// It returns false without error when a record already exists.
func (r *idempotencyRepository) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	query := `
		INSERT INTO idempotency_records (actor_id, idem_key, fingerprint, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, rec.ActorID, rec.Key, rec.Fingerprint, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		err = storage.Classify("failed to reserve idempotency key", err)
		if errors.Is(err, storage.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get retrieves the record for (actor, key), or nil when there is none
func (r *idempotencyRepository) Get(ctx context.Context, actorID int, key string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT actor_id, idem_key, fingerprint, status_code, content_type, body, created_at, completed_at, expires_at
		FROM idempotency_records
		WHERE actor_id = ? AND idem_key = ?
		LIMIT 1
	`

	var (
		rec         models.IdempotencyRecord
		statusCode  sql.NullInt64
		contentType sql.NullString
		completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, actorID, key).Scan(
		&rec.ActorID,
		&rec.Key,
		&rec.Fingerprint,
		&statusCode,
		&contentType,
		&rec.Body,
		&rec.CreatedAt,
		&completedAt,
		&rec.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Classify("failed to get idempotency record", err)
	}

	rec.StatusCode = int(statusCode.Int64)
	rec.ContentType = contentType.String
	rec.CompletedAt = nullTime(completedAt)
	return &rec, nil
}

// Complete stores the response of a pending reservation.
// It returns storage.ErrStateChanged when the reservation was released or evicted meanwhile.
func (r *idempotencyRepository) Complete(ctx context.Context, rec *models.IdempotencyRecord) error {
	query := `
		UPDATE idempotency_records
		SET status_code = ?, content_type = ?, body = ?, completed_at = ?, expires_at = ?
		WHERE actor_id = ? AND idem_key = ? AND fingerprint = ? AND completed_at IS NULL
	`

	return execGuarded(ctx, r.db, "failed to complete idempotency record", storage.ErrStateChanged, query,
		rec.StatusCode,
		rec.ContentType,
		rec.Body,
		rec.CompletedAt,
		rec.ExpiresAt,
		rec.ActorID,
		rec.Key,
		rec.Fingerprint,
	)
}

// Release deletes a pending reservation so the key can be reused
func (r *idempotencyRepository) Release(ctx context.Context, actorID int, key, fingerprint string) error {
	query := `
		DELETE FROM idempotency_records
		WHERE actor_id = ? AND idem_key = ? AND fingerprint = ? AND completed_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, actorID, key, fingerprint); err != nil {
		return storage.Classify("failed to release idempotency key", err)
	}
	return nil
}

// Evict deletes the record previously observed as expired or abandoned.
// A record replaced since it was read is left untouched.
func (r *idempotencyRepository) Evict(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	query := `
		DELETE FROM idempotency_records
		WHERE actor_id = ? AND idem_key = ? AND fingerprint = ? AND created_at = ?
	`

	result, err := r.db.ExecContext(ctx, query, rec.ActorID, rec.Key, rec.Fingerprint, rec.CreatedAt)
	if err != nil {
		return false, storage.Classify("failed to evict idempotency record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, storage.Classify("failed to evict idempotency record", err)
	}
	return affected > 0, nil
}

// DeleteExpired removes every expired record and every reservation created before staleBefore
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	query := `
		DELETE FROM idempotency_records
		WHERE expires_at <= ? OR (completed_at IS NULL AND created_at <= ?)
	`

	result, err := r.db.ExecContext(ctx, query, now, staleBefore)
	if err != nil {
		return 0, storage.Classify("failed to delete expired idempotency records", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, storage.Classify("failed to delete expired idempotency records", err)
	}
	return affected, nil
}
