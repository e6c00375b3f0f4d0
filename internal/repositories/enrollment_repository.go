package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

type enrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db *sql.DB) *enrollmentRepository {
	return &enrollmentRepository{
		db: db,
	}
}

const enrollmentColumns = `id, learner_id, course_id, status, completed_lesson_ids, certificate_serial_hash, certificate_issued_at, enrolled_at, version`

func scanEnrollment(row interface{ Scan(...any) error }) (*models.Enrollment, error) {
	var (
		enrollment models.Enrollment
		completed  []byte
		serial     sql.NullString
		issuedAt   sql.NullTime
	)
	err := row.Scan(
		&enrollment.ID,
		&enrollment.LearnerID,
		&enrollment.CourseID,
		&enrollment.Status,
		&completed,
		&serial,
		&issuedAt,
		&enrollment.EnrolledAt,
		&enrollment.Version,
	)
	if err != nil {
		return nil, err
	}

	if enrollment.CompletedLessonIDs, err = decodeLessonIDs(completed); err != nil {
		return nil, err
	}
	enrollment.CertificateSerialHash = nullString(serial)
	enrollment.CertificateIssuedAt = nullTime(issuedAt)

	return &enrollment, nil
}

func decodeLessonIDs(raw []byte) ([]int, error) {
	ids := []int{}
	if len(raw) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode completed lesson ids: %w", err)
	}
	return ids, nil
}

func encodeLessonIDs(ids []int) ([]byte, error) {
	if ids == nil {
		ids = []int{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completed lesson ids: %w", err)
	}
	return raw, nil
}

// Create inserts a new enrollment and sets its ID.
// An existing (learner, course) pair is reported as storage.ErrDuplicate.
func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	completed, err := encodeLessonIDs(enrollment.CompletedLessonIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO enrollments (learner_id, course_id, status, completed_lesson_ids, enrolled_at, version)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		enrollment.LearnerID,
		enrollment.CourseID,
		enrollment.Status,
		completed,
		enrollment.EnrolledAt,
		enrollment.Version,
	)
	if err != nil {
		return storage.Classify("failed to create enrollment", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}
	enrollment.ID = int(id)

	return nil
}

// GetByID retrieves an enrollment by its ID
func (r *enrollmentRepository) GetByID(ctx context.Context, id int) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = ? LIMIT 1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storage.Classify("failed to get enrollment by id", err)
	}
	return enrollment, nil
}

// GetByLearnerAndCourse retrieves the enrollment of a learner in a course
func (r *enrollmentRepository) GetByLearnerAndCourse(ctx context.Context, learnerID, courseID int) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE learner_id = ? AND course_id = ? LIMIT 1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, learnerID, courseID))
	if err != nil {
		return nil, storage.Classify("failed to get enrollment by learner and course", err)
	}
	return enrollment, nil
}

// UpdateProgress writes the progression fields of an enrollment if its version is unchanged.
// On success the version is incremented; a concurrent writer yields storage.ErrVersionConflict.
func (r *enrollmentRepository) UpdateProgress(ctx context.Context, enrollment *models.Enrollment) error {
	completed, err := encodeLessonIDs(enrollment.CompletedLessonIDs)
	if err != nil {
		return err
	}

	query := `
		UPDATE enrollments
		SET status = ?, completed_lesson_ids = ?, certificate_serial_hash = ?, certificate_issued_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	err = execGuarded(ctx, r.db, "failed to update enrollment progress", storage.ErrVersionConflict, query,
		enrollment.Status,
		completed,
		enrollment.CertificateSerialHash,
		enrollment.CertificateIssuedAt,
		enrollment.ID,
		enrollment.Version,
	)
	if err != nil {
		return err
	}

	enrollment.Version++
	return nil
}

// ListProgressByLearner retrieves all enrollments of a learner with their course summary,
// most recent first. Lesson totals are left for the caller to fill.
func (r *enrollmentRepository) ListProgressByLearner(ctx context.Context, learnerID int) ([]models.ProgressItem, error) {
	query := `
		SELECT
			e.id,
			e.course_id,
			e.status,
			e.completed_lesson_ids,
			e.certificate_serial_hash,
			e.certificate_issued_at,
			e.enrolled_at,
			c.title,
			c.description,
			c.creator_id,
			u.name
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		JOIN users u ON u.id = c.creator_id
		WHERE e.learner_id = ?
		ORDER BY e.enrolled_at DESC, e.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, learnerID)
	if err != nil {
		return nil, storage.Classify("failed to query enrollments", err)
	}
	defer rows.Close()

	items := []models.ProgressItem{}
	for rows.Next() {
		var (
			item      models.ProgressItem
			creator   models.UserSummary
			completed []byte
			serial    sql.NullString
			issuedAt  sql.NullTime
		)
		err := rows.Scan(
			&item.ID,
			&item.CourseID,
			&item.Status,
			&completed,
			&serial,
			&issuedAt,
			&item.EnrolledAt,
			&item.Course.Title,
			&item.Course.Description,
			&creator.ID,
			&creator.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		if item.CompletedLessonIDs, err = decodeLessonIDs(completed); err != nil {
			return nil, err
		}
		item.Course.ID = item.CourseID
		item.Course.Creator = &creator
		item.CertificateSerialHash = nullString(serial)
		item.CertificateIssuedAt = nullTime(issuedAt)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("error iterating rows", err)
	}

	return items, nil
}
