package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/pagination"
	"github.com/skillpath/backend/internal/storage"
)

type courseRepository struct {
	db *sql.DB
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *sql.DB) *courseRepository {
	return &courseRepository{
		db: db,
	}
}

const courseSelect = `
		SELECT
			c.id,
			c.title,
			c.description,
			c.creator_id,
			u.name,
			u.email,
			c.status,
			c.submitted_at,
			c.reviewed_at,
			c.reviewed_by,
			c.review_note,
			c.revision_of,
			c.created_at,
			(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count
		FROM courses c
		JOIN users u ON u.id = c.creator_id
`

func scanCourse(row interface{ Scan(...any) error }) (*models.Course, error) {
	var (
		course     models.Course
		creator    models.UserSummary
		submitted  sql.NullTime
		reviewed   sql.NullTime
		reviewedBy sql.NullInt64
		note       sql.NullString
		revisionOf sql.NullInt64
	)
	err := row.Scan(
		&course.ID,
		&course.Title,
		&course.Description,
		&course.CreatorID,
		&creator.Name,
		&creator.Email,
		&course.Status,
		&submitted,
		&reviewed,
		&reviewedBy,
		&note,
		&revisionOf,
		&course.CreatedAt,
		&course.LessonCount,
	)
	if err != nil {
		return nil, err
	}

	creator.ID = course.CreatorID
	course.Creator = &creator
	course.SubmittedAt = nullTime(submitted)
	course.ReviewedAt = nullTime(reviewed)
	course.ReviewedBy = nullInt(reviewedBy)
	course.ReviewNote = nullString(note)
	course.RevisionOf = nullInt(revisionOf)

	return &course, nil
}

// Create inserts a new course and sets its ID
func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	query := `
		INSERT INTO courses (title, description, creator_id, status, revision_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		course.Title,
		course.Description,
		course.CreatorID,
		course.Status,
		course.RevisionOf,
		course.CreatedAt,
	)
	if err != nil {
		return storage.Classify("failed to create course", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}
	course.ID = int(id)

	return nil
}

// GetByID retrieves a course by its ID, including its creator and lesson count
func (r *courseRepository) GetByID(ctx context.Context, id int) (*models.Course, error) {
	query := courseSelect + ` WHERE c.id = ? LIMIT 1`

	course, err := scanCourse(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storage.Classify("failed to get course by id", err)
	}
	return course, nil
}

// List retrieves courses in the given statuses ordered by (created_at, id), starting after the cursor.
// It returns up to limit rows; callers ask for one extra row to detect a following page.
func (r *courseRepository) List(ctx context.Context, statuses []models.CourseStatus, after *pagination.Cursor, limit int) ([]models.Course, error) {
	if len(statuses) == 0 {
		return []models.Course{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+4)
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, s)
	}

	whereClauses := []string{fmt.Sprintf("c.status IN (%s)", strings.Join(placeholders, ", "))}
	if after != nil {
		whereClauses = append(whereClauses, "(c.created_at > ? OR (c.created_at = ? AND c.id > ?))")
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID)
	}
	args = append(args, limit)

	query := courseSelect + ` WHERE ` + strings.Join(whereClauses, " AND ") + ` ORDER BY c.created_at, c.id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("failed to query courses", err)
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, *course)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("error iterating rows", err)
	}

	return courses, nil
}

// MarkSubmitted records a review submission of a draft course.
// It returns storage.ErrStateChanged when the course is no longer an unsubmitted draft.
func (r *courseRepository) MarkSubmitted(ctx context.Context, id int, at time.Time) error {
	query := `
		UPDATE courses
		SET submitted_at = ?
		WHERE id = ? AND status = 'DRAFT' AND submitted_at IS NULL
	`

	return execGuarded(ctx, r.db, "failed to submit course", storage.ErrStateChanged, query, at, id)
}

// Review moves a submitted draft to PUBLISHED or REJECTED.
// The status guard makes racing reviews resolve to exactly one winner; losers get storage.ErrStateChanged.
func (r *courseRepository) Review(ctx context.Context, id int, to models.CourseStatus, reviewerID int, note *string, at time.Time) error {
	query := `
		UPDATE courses
		SET status = ?, reviewed_at = ?, reviewed_by = ?, review_note = ?
		WHERE id = ? AND status = 'DRAFT' AND submitted_at IS NOT NULL
	`

	return execGuarded(ctx, r.db, "failed to review course", storage.ErrStateChanged, query, to, at, reviewerID, note, id)
}

// CreateRevision inserts a new draft course together with copies of lessons.
// The draft and its lessons are written in one transaction.
func (r *courseRepository) CreateRevision(ctx context.Context, course *models.Course, lessons []models.Lesson) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO courses (title, description, creator_id, status, revision_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, course.Title, course.Description, course.CreatorID, course.Status, course.RevisionOf, course.CreatedAt)
	if err != nil {
		return storage.Classify("failed to create course revision", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}

	copied := make([]models.Lesson, 0, len(lessons))
	for _, l := range lessons {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO lessons (course_id, title, order_index, content_url, transcript, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, l.Title, l.OrderIndex, l.ContentURL, l.Transcript, course.CreatedAt)
		if err != nil {
			return storage.Classify("failed to copy lesson", err)
		}
		lessonID, err := res.LastInsertId()
		if err != nil {
			return storage.Classify("failed to get last insert id", err)
		}
		l.ID = int(lessonID)
		l.CourseID = int(id)
		l.CreatedAt = course.CreatedAt
		copied = append(copied, l)
	}

	if err := tx.Commit(); err != nil {
		return storage.Classify("failed to commit course revision", err)
	}

	course.ID = int(id)
	course.Lessons = copied
	course.LessonCount = len(copied)
	return nil
}
