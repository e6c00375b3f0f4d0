package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/storage"
)

type lessonRepository struct {
	db *sql.DB
}

// NewLessonRepository creates a new lesson repository
func NewLessonRepository(db *sql.DB) *lessonRepository {
	return &lessonRepository{
		db: db,
	}
}

const lessonColumns = `id, course_id, title, order_index, content_url, transcript, created_at`

func scanLesson(row interface{ Scan(...any) error }) (*models.Lesson, error) {
	var (
		lesson     models.Lesson
		transcript sql.NullString
	)
	err := row.Scan(
		&lesson.ID,
		&lesson.CourseID,
		&lesson.Title,
		&lesson.OrderIndex,
		&lesson.ContentURL,
		&transcript,
		&lesson.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	lesson.Transcript = nullString(transcript)
	return &lesson, nil
}

// Append adds a lesson at the end of a draft course and clears the course's review submission.
// A zero OrderIndex is assigned the next index. The course row is locked for the duration,
// so concurrent appends serialize. Returns storage.ErrStateChanged when the course is not a draft,
// storage.ErrOutOfOrder when OrderIndex is not the next index, and storage.ErrNotFound when the
// course does not exist.
func (r *lessonRepository) Append(ctx context.Context, lesson *models.Lesson) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var status models.CourseStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM courses WHERE id = ? FOR UPDATE`, lesson.CourseID).Scan(&status)
	if err != nil {
		return storage.Classify("failed to lock course", err)
	}
	if status != models.CourseStatusDraft {
		return storage.ErrStateChanged
	}

	var maxIndex int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index), 0) FROM lessons WHERE course_id = ?`, lesson.CourseID).Scan(&maxIndex)
	if err != nil {
		return storage.Classify("failed to get last lesson index", err)
	}

	if lesson.OrderIndex == 0 {
		lesson.OrderIndex = maxIndex + 1
	}
	if lesson.OrderIndex != maxIndex+1 {
		return fmt.Errorf("%w: expected %d", storage.ErrOutOfOrder, maxIndex+1)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO lessons (course_id, title, order_index, content_url, transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, lesson.CourseID, lesson.Title, lesson.OrderIndex, lesson.ContentURL, lesson.Transcript, lesson.CreatedAt)
	if err != nil {
		return storage.Classify("failed to create lesson", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storage.Classify("failed to get last insert id", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE courses SET submitted_at = NULL WHERE id = ?`, lesson.CourseID); err != nil {
		return storage.Classify("failed to reset course submission", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.Classify("failed to commit lesson", err)
	}

	lesson.ID = int(id)
	return nil
}

// GetByID retrieves a lesson by its ID
func (r *lessonRepository) GetByID(ctx context.Context, id int) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = ? LIMIT 1`

	lesson, err := scanLesson(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storage.Classify("failed to get lesson by id", err)
	}
	return lesson, nil
}

// ListByCourse retrieves the lessons of a course ordered by order index
func (r *lessonRepository) ListByCourse(ctx context.Context, courseID int) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE course_id = ? ORDER BY order_index`

	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, storage.Classify("failed to query lessons", err)
	}
	defer rows.Close()

	lessons := []models.Lesson{}
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, *lesson)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("error iterating rows", err)
	}

	return lessons, nil
}

// ListIDsByCourses retrieves the lesson IDs of each course
func (r *lessonRepository) ListIDsByCourses(ctx context.Context, courseIDs []int) (map[int][]int, error) {
	result := make(map[int][]int, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(courseIDs))
	args := make([]any, len(courseIDs))
	for i, id := range courseIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT course_id, id
		FROM lessons
		WHERE course_id IN (%s)
		ORDER BY course_id, order_index
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("failed to query lesson ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var courseID, lessonID int
		if err := rows.Scan(&courseID, &lessonID); err != nil {
			return nil, fmt.Errorf("failed to scan lesson id: %w", err)
		}
		result[courseID] = append(result[courseID], lessonID)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("error iterating rows", err)
	}

	return result, nil
}
