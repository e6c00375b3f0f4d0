package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/pagination"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/retry"
	"go.uber.org/zap"
)

// CourseRepository is the interface that wraps methods for Course table data access
type CourseRepository interface {
	// Method Create inserts a new course into the database.
	//
	// "course" parameter is used to create a new course. Its ID is set on success.
	//
	// If some error occurs during course creation, the error will be returned.
	Create(ctx context.Context, course *models.Course) error
	// Method GetByID retrieves a course by ID together with its creator and lesson count.
	//
	// "id" parameter is used to retrieve a course by ID.
	//
	// If course with such ID does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id int) (*models.Course, error)
	// Method List retrieves courses in the given statuses ordered by creation time and ID.
	//
	// "statuses" parameter is used to filter courses by status.
	// "after" parameter is the keyset cursor of the previous page, nil for the first page.
	// "limit" parameter is the maximum number of rows returned.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	List(ctx context.Context, statuses []models.CourseStatus, after *pagination.Cursor, limit int) ([]models.Course, error)
	// Method MarkSubmitted records the review submission of an unsubmitted draft.
	//
	// "id" parameter is used to identify the course.
	// "at" parameter is the submission time.
	//
	// If the course is no longer an unsubmitted draft, storage.ErrStateChanged will be returned.
	MarkSubmitted(ctx context.Context, id int, at time.Time) error
	// Method Review moves a submitted draft to PUBLISHED or REJECTED.
	//
	// "id" parameter is used to identify the course.
	// "to" parameter is the target status.
	// "reviewerID" parameter is the admin deciding the review.
	// "note" parameter is the optional reviewer note.
	// "at" parameter is the review time.
	//
	// If the course is not a submitted draft anymore, storage.ErrStateChanged will be returned.
	Review(ctx context.Context, id int, to models.CourseStatus, reviewerID int, note *string, at time.Time) error
	// Method CreateRevision inserts a new draft course together with copies of the given lessons.
	//
	// "course" parameter is the new draft. Its ID is set on success.
	// "lessons" parameter is the ordered lesson list to copy.
	//
	// If some error occurs, nothing is written and the error will be returned.
	CreateRevision(ctx context.Context, course *models.Course, lessons []models.Lesson) error
}

// LessonRepository is the interface that wraps methods for Lesson table data access
type LessonRepository interface {
	// Method Append adds a lesson at the end of a draft course and clears its review submission.
	//
	// "lesson" parameter is the lesson to append. A zero OrderIndex takes the next index.
	//
	// If the course is not a draft, storage.ErrStateChanged will be returned.
	// If OrderIndex is not the next index, storage.ErrOutOfOrder will be returned.
	Append(ctx context.Context, lesson *models.Lesson) error
	// Method GetByID retrieves a lesson by ID.
	//
	// "id" parameter is used to retrieve a lesson by ID.
	//
	// If lesson with such ID does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id int) (*models.Lesson, error)
	// Method ListByCourse retrieves the lessons of a course ordered by order index.
	//
	// "courseID" parameter is used to select the course.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	ListByCourse(ctx context.Context, courseID int) ([]models.Lesson, error)
	// Method ListIDsByCourses retrieves lesson IDs grouped by course.
	//
	// "courseIDs" parameter is used to select the courses.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	ListIDsByCourses(ctx context.Context, courseIDs []int) (map[int][]int, error)
}

// catalogService implements course authoring, review and browsing
type catalogService struct {
	courseRepo CourseRepository
	lessonRepo LessonRepository
	gate       *authz.Gate
	notifier   Notifier
	validate   *validator.Validate
	policy     retry.Policy
	logger     *zap.Logger
	now        func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	courseRepo CourseRepository,
	lessonRepo LessonRepository,
	gate *authz.Gate,
	notifier Notifier,
	policy retry.Policy,
	logger *zap.Logger,
) *catalogService {
	return &catalogService{
		courseRepo: courseRepo,
		lessonRepo: lessonRepo,
		gate:       gate,
		notifier:   notifier,
		validate:   newValidator(),
		policy:     policy,
		logger:     logger,
		now:        storeNow,
	}
}

var anyRole = []models.Role{models.RoleLearner, models.RoleCreator, models.RoleAdmin}

// getCourse loads a course, retrying transient failures
func (s *catalogService) getCourse(ctx context.Context, id int) (*models.Course, error) {
	course, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Course, error) {
		return s.courseRepo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}
	return course, nil
}

// ownsCourse is the ownership predicate of creator operations on a course
func (s *catalogService) ownsCourse(courseID int, loaded **models.Course) authz.OwnerCheck {
	return func(ctx context.Context, actor middleware.Identity) (bool, error) {
		course, err := s.getCourse(ctx, courseID)
		if err != nil {
			return false, err
		}
		*loaded = course
		return course.CreatorID == actor.UserID, nil
	}
}

// visible reports whether actor may see course. Non-published courses are only visible to
// their owner and to admins.
func visible(course *models.Course, actor *middleware.Identity) bool {
	if course.Status == models.CourseStatusPublished {
		return true
	}
	return actor.Role == string(models.RoleAdmin) || course.CreatorID == actor.UserID
}

// CreateCourse creates a DRAFT course owned by the caller
func (s *catalogService) CreateCourse(ctx context.Context, actor *middleware.Identity, req *models.CreateCourseRequest) (*models.Course, error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleCreator}, nil); err != nil {
		return nil, err
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		CreatorID:   actor.UserID,
		Status:      models.CourseStatusDraft,
		CreatedAt:   s.now(),
		Lessons:     []models.Lesson{},
	}
	if err := s.courseRepo.Create(ctx, course); err != nil {
		return nil, storeError(err, "course not found")
	}

	s.logger.Info("course created", zap.Int("course_id", course.ID), zap.Int("creator_id", actor.UserID))
	return course, nil
}

// AddLesson appends a lesson to a draft course owned by the caller
func (s *catalogService) AddLesson(ctx context.Context, actor *middleware.Identity, req *models.CreateLessonRequest) (*models.Lesson, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.ContentURL = strings.TrimSpace(req.ContentURL)

	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	var course *models.Course
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleCreator}, s.ownsCourse(req.CourseID, &course)); err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusDraft {
		return nil, apperr.New(apperr.StateConflict, "lessons can only be added to draft courses")
	}

	lesson := &models.Lesson{
		CourseID:   req.CourseID,
		Title:      req.Title,
		ContentURL: req.ContentURL,
		Transcript: req.Transcript,
		CreatedAt:  s.now(),
	}
	requested := 0
	if req.OrderIndex != nil {
		requested = *req.OrderIndex
	}

	_, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (struct{}, error) {
		lesson.OrderIndex = requested
		return struct{}{}, s.lessonRepo.Append(ctx, lesson)
	})
	switch {
	case errors.Is(err, storage.ErrStateChanged):
		return nil, apperr.Wrap(apperr.StateConflict, err, "lessons can only be added to draft courses")
	case errors.Is(err, storage.ErrOutOfOrder):
		return nil, apperr.Wrap(apperr.ValidationFailed, err, "orderIndex must be the next lesson index")
	case errors.Is(err, storage.ErrDuplicate):
		return nil, apperr.Wrap(apperr.StateConflict, err, "a lesson with this order index already exists")
	case err != nil:
		return nil, storeError(err, "course not found")
	}

	s.logger.Info("lesson added",
		zap.Int("course_id", lesson.CourseID),
		zap.Int("lesson_id", lesson.ID),
		zap.Int("order_index", lesson.OrderIndex),
	)
	return lesson, nil
}

// SubmitForReview marks a draft with a contiguous lesson sequence as ready for review.
// Submitting an already submitted draft succeeds without change.
func (s *catalogService) SubmitForReview(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	var course *models.Course
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleCreator}, s.ownsCourse(courseID, &course)); err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusDraft {
		return nil, apperr.New(apperr.StateConflict, "only draft courses can be submitted for review")
	}
	if course.SubmittedAt != nil {
		return s.withLessons(ctx, course)
	}

	lessons, err := s.listLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 {
		return nil, apperr.New(apperr.ValidationFailed, "a course needs at least one lesson before review")
	}
	for i, l := range lessons {
		if l.OrderIndex != i+1 {
			return nil, apperr.New(apperr.ValidationFailed, "lesson order must be contiguous from 1, found %d at position %d", l.OrderIndex, i+1)
		}
	}

	err = s.courseRepo.MarkSubmitted(ctx, courseID, s.now())
	if err != nil && !errors.Is(err, storage.ErrStateChanged) {
		return nil, storeError(err, "course not found")
	}

	updated, getErr := s.getCourse(ctx, courseID)
	if getErr != nil {
		return nil, getErr
	}
	if err != nil && (updated.Status != models.CourseStatusDraft || updated.SubmittedAt == nil) {
		return nil, apperr.Wrap(apperr.StateConflict, err, "the course changed while it was being submitted")
	}

	s.logger.Info("course submitted for review", zap.Int("course_id", courseID))
	updated.Lessons = lessons
	return updated, nil
}

// ReviseCourse creates a new draft from a rejected course, copying its lessons.
// The rejected course itself is left untouched.
func (s *catalogService) ReviseCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	var source *models.Course
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleCreator}, s.ownsCourse(courseID, &source)); err != nil {
		return nil, err
	}
	if source.Status != models.CourseStatusRejected {
		return nil, apperr.New(apperr.StateConflict, "only rejected courses can be revised")
	}

	lessons, err := s.listLessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	revisionOf := source.ID
	draft := &models.Course{
		Title:       source.Title,
		Description: source.Description,
		CreatorID:   source.CreatorID,
		Creator:     source.Creator,
		Status:      models.CourseStatusDraft,
		RevisionOf:  &revisionOf,
		CreatedAt:   s.now(),
		LessonCount: len(lessons),
	}
	if err := s.courseRepo.CreateRevision(ctx, draft, lessons); err != nil {
		return nil, storeError(err, "course not found")
	}

	s.logger.Info("course revised", zap.Int("course_id", draft.ID), zap.Int("revision_of", source.ID))
	return s.withLessons(ctx, draft)
}

// ApproveCourse publishes a submitted draft
func (s *catalogService) ApproveCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error) {
	return s.review(ctx, actor, courseID, models.CourseStatusPublished, note)
}

// RejectCourse rejects a submitted draft
func (s *catalogService) RejectCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error) {
	return s.review(ctx, actor, courseID, models.CourseStatusRejected, note)
}

func (s *catalogService) review(ctx context.Context, actor *middleware.Identity, courseID int, to models.CourseStatus, note string) (*models.Course, error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleAdmin}, nil); err != nil {
		return nil, err
	}

	req := models.CourseReviewRequest{Note: strings.TrimSpace(note)}
	if err := validateStruct(s.validate, &req); err != nil {
		return nil, err
	}
	var notePtr *string
	if req.Note != "" {
		notePtr = &req.Note
	}

	course, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusDraft {
		return nil, apperr.New(apperr.StateConflict, "course has already been reviewed")
	}
	if course.SubmittedAt == nil {
		return nil, apperr.New(apperr.StateConflict, "course has not been submitted for review")
	}

	if err := s.courseRepo.Review(ctx, courseID, to, actor.UserID, notePtr, s.now()); err != nil {
		if errors.Is(err, storage.ErrStateChanged) {
			s.logger.Info("course review lost race", zap.Int("course_id", courseID), zap.String("status", string(to)))
			return nil, apperr.Wrap(apperr.StateConflict, err, "course has already been reviewed")
		}
		return nil, storeError(err, "course not found")
	}

	s.logger.Info("course reviewed",
		zap.Int("course_id", courseID),
		zap.String("status", string(to)),
		zap.Int("reviewer_id", actor.UserID),
	)

	if err := s.notifier.CourseReviewed(ctx, notifications.CourseReviewedPayload{
		CourseID:    course.ID,
		CreatorID:   course.CreatorID,
		CourseTitle: course.Title,
		Status:      string(to),
		Note:        notePtr,
	}); err != nil {
		s.logger.Warn("failed to publish course review", zap.Int("course_id", courseID), zap.Error(err))
	}

	return s.getCourse(ctx, courseID)
}

// ListCourses returns a page of published courses
func (s *catalogService) ListCourses(ctx context.Context, actor *middleware.Identity, limit int, offset string) (*models.Page[models.Course], error) {
	if err := s.gate.Authorize(ctx, actor, anyRole, nil); err != nil {
		return nil, err
	}
	return s.list(ctx, []models.CourseStatus{models.CourseStatusPublished}, limit, offset)
}

// ListReviewCourses returns a page of courses for admins, DRAFT courses by default
func (s *catalogService) ListReviewCourses(ctx context.Context, actor *middleware.Identity, statuses []string, limit int, offset string) (*models.Page[models.Course], error) {
	if err := s.gate.Authorize(ctx, actor, []models.Role{models.RoleAdmin}, nil); err != nil {
		return nil, err
	}

	filter := make([]models.CourseStatus, 0, len(statuses))
	for _, raw := range statuses {
		status, ok := models.ParseCourseStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !ok {
			return nil, apperr.New(apperr.ValidationFailed, "unknown course status %q", raw)
		}
		filter = append(filter, status)
	}
	if len(filter) == 0 {
		filter = []models.CourseStatus{models.CourseStatusDraft}
	}
	return s.list(ctx, filter, limit, offset)
}

func (s *catalogService) list(ctx context.Context, statuses []models.CourseStatus, limit int, offset string) (*models.Page[models.Course], error) {
	page, err := pagination.Parse(limit, offset)
	if err != nil {
		return nil, err
	}

	courses, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) ([]models.Course, error) {
		return s.courseRepo.List(ctx, statuses, page.After, page.Limit+1)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}

	items, next := pagination.Next(courses, page.Limit, func(c models.Course) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return &models.Page[models.Course]{Items: items, NextOffset: next}, nil
}

// GetCourse returns a course with its lessons if the caller may see it
func (s *catalogService) GetCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	course, err := s.visibleCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	return s.withLessons(ctx, course)
}

// ListLessons returns the ordered lessons of a course the caller may see
func (s *catalogService) ListLessons(ctx context.Context, actor *middleware.Identity, courseID int) ([]models.Lesson, error) {
	if _, err := s.visibleCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	return s.listLessons(ctx, courseID)
}

// GetLesson returns a lesson if the caller may see its course
func (s *catalogService) GetLesson(ctx context.Context, actor *middleware.Identity, lessonID int) (*models.Lesson, error) {
	if err := s.gate.Authorize(ctx, actor, anyRole, nil); err != nil {
		return nil, err
	}

	lesson, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Lesson, error) {
		return s.lessonRepo.GetByID(ctx, lessonID)
	})
	if err != nil {
		return nil, storeError(err, "lesson not found")
	}

	if _, err := s.visibleCourse(ctx, actor, lesson.CourseID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.New(apperr.NotFound, "lesson not found")
		}
		return nil, err
	}
	return lesson, nil
}

// visibleCourse loads a course and hides it as NotFound from callers who may not see it
func (s *catalogService) visibleCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error) {
	if err := s.gate.Authorize(ctx, actor, anyRole, nil); err != nil {
		return nil, err
	}
	course, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !visible(course, actor) {
		return nil, apperr.New(apperr.NotFound, "course not found")
	}
	return course, nil
}

func (s *catalogService) listLessons(ctx context.Context, courseID int) ([]models.Lesson, error) {
	lessons, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) ([]models.Lesson, error) {
		return s.lessonRepo.ListByCourse(ctx, courseID)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}
	return lessons, nil
}

func (s *catalogService) withLessons(ctx context.Context, course *models.Course) (*models.Course, error) {
	lessons, err := s.listLessons(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	course.Lessons = lessons
	course.LessonCount = len(lessons)
	return course, nil
}
