package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/pagination"
	"github.com/skillpath/backend/internal/storage"
)

type creatorApplicationRepository struct {
	db *sql.DB
}

// NewCreatorApplicationRepository creates a new creator application repository
func NewCreatorApplicationRepository(db *sql.DB) *creatorApplicationRepository {
	return &creatorApplicationRepository{
		db: db,
	}
}

// Submit moves the user to PENDING and stores the application in one transaction.
// The user update is guarded by role LEARNER and status NONE or REJECTED; when the guard
// fails nothing is written and storage.ErrStateChanged is returned.
func (r *creatorApplicationRepository) Submit(ctx context.Context, app *models.CreatorApplication) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	err = execGuarded(ctx, tx, "failed to mark application pending", storage.ErrStateChanged, `
		UPDATE users
		SET creator_application_status = 'PENDING'
		WHERE id = ? AND role = 'LEARNER' AND creator_application_status IN ('NONE', 'REJECTED')
	`, app.UserID)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO creator_applications (user_id, bio, portfolio_url, status, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`, app.UserID, app.Bio, app.PortfolioURL, models.CreatorStatusPending, app.SubmittedAt)
	if err != nil {
		return storage.Classify("failed to create creator application", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Classify("failed to commit creator application", err)
	}

	app.ID = int(id)
	app.Status = models.CreatorStatusPending
	return nil
}

// Review decides the pending application of a user.
// Approval sets the user's status and role in a single guarded row update; a user that is no
// longer PENDING yields storage.ErrStateChanged.
func (r *creatorApplicationRepository) Review(ctx context.Context, userID int, decision models.CreatorApplicationStatus, reviewerID int, at time.Time) error {
	if decision != models.CreatorStatusApproved && decision != models.CreatorStatusRejected {
		return fmt.Errorf("invalid creator decision %q", decision)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	userQuery := `
		UPDATE users
		SET creator_application_status = ?
		WHERE id = ? AND creator_application_status = 'PENDING'
	`
	if decision == models.CreatorStatusApproved {
		userQuery = `
			UPDATE users
			SET creator_application_status = ?, role = 'CREATOR'
			WHERE id = ? AND creator_application_status = 'PENDING'
		`
	}
	if err := execGuarded(ctx, tx, "failed to review creator", storage.ErrStateChanged, userQuery, decision, userID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE creator_applications
		SET status = ?, reviewed_at = ?, reviewed_by = ?
		WHERE user_id = ? AND status = 'PENDING'
	`, decision, at, reviewerID, userID); err != nil {
		return storage.Classify("failed to review creator application", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Classify("failed to commit creator review", err)
	}
	return nil
}

// ListByStatus retrieves applications in a status ordered by (submitted_at, id), starting after the cursor
func (r *creatorApplicationRepository) ListByStatus(ctx context.Context, status models.CreatorApplicationStatus, after *pagination.Cursor, limit int) ([]models.CreatorApplication, error) {
	query := `
		SELECT
			a.id,
			a.user_id,
			u.name,
			u.email,
			a.bio,
			a.portfolio_url,
			a.status,
			a.submitted_at,
			a.reviewed_at,
			a.reviewed_by
		FROM creator_applications a
		JOIN users u ON u.id = a.user_id
		WHERE a.status = ?
	`
	args := []any{status}
	if after != nil {
		query += ` AND (a.submitted_at > ? OR (a.submitted_at = ? AND a.id > ?))`
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY a.submitted_at, a.id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("failed to query creator applications", err)
	}
	defer rows.Close()

	apps := []models.CreatorApplication{}
	for rows.Next() {
		var (
			app        models.CreatorApplication
			user       models.UserSummary
			reviewedAt sql.NullTime
			reviewedBy sql.NullInt64
		)
		err := rows.Scan(
			&app.ID,
			&app.UserID,
			&user.Name,
			&user.Email,
			&app.Bio,
			&app.PortfolioURL,
			&app.Status,
			&app.SubmittedAt,
			&reviewedAt,
			&reviewedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creator application: %w", err)
		}
		user.ID = app.UserID
		app.User = &user
		app.ReviewedAt = nullTime(reviewedAt)
		app.ReviewedBy = nullInt(reviewedBy)
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("error iterating rows", err)
	}

	return apps, nil
}
