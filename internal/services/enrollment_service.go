package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/storage"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/retry"
	"go.uber.org/zap"
)

// EnrollmentRepository is the interface that wraps methods for Enrollment table data access
type EnrollmentRepository interface {
	// Method Create inserts a new enrollment into the database.
	//
	// "enrollment" parameter is used to create a new enrollment. Its ID and version are set on success.
	//
	// If the learner is already enrolled in the course, storage.ErrDuplicate will be returned.
	Create(ctx context.Context, enrollment *models.Enrollment) error
	// Method GetByID retrieves an enrollment by ID.
	//
	// "id" parameter is used to retrieve an enrollment by ID.
	//
	// If enrollment with such ID does not exist, storage.ErrNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id int) (*models.Enrollment, error)
	// Method GetByLearnerAndCourse retrieves the enrollment of a learner in a course.
	//
	// "learnerID" parameter is the enrolled user.
	// "courseID" parameter is the course.
	//
	// If there is no such enrollment, storage.ErrNotFound will be returned together with "nil" value.
	GetByLearnerAndCourse(ctx context.Context, learnerID, courseID int) (*models.Enrollment, error)
	// Method UpdateProgress writes the progression fields if the stored version equals enrollment.Version.
	//
	// "enrollment" parameter carries the new state and the version it was read at.
	//
	// If another writer updated the row first, storage.ErrVersionConflict will be returned.
	UpdateProgress(ctx context.Context, enrollment *models.Enrollment) error
	// Method ListProgressByLearner retrieves all enrollments of a learner with their course summary.
	//
	// "learnerID" parameter is the enrolled user.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	ListProgressByLearner(ctx context.Context, learnerID int) ([]models.ProgressItem, error)
}

var enrollmentRoles = []models.Role{models.RoleLearner, models.RoleCreator}

// enrollmentService implements enrollment and lesson progression
type enrollmentService struct {
	enrollmentRepo EnrollmentRepository
	courseRepo     CourseRepository
	lessonRepo     LessonRepository
	gate           *authz.Gate
	notifier       Notifier
	policy         retry.Policy
	logger         *zap.Logger
	now            func() time.Time
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(
	enrollmentRepo EnrollmentRepository,
	courseRepo CourseRepository,
	lessonRepo LessonRepository,
	gate *authz.Gate,
	notifier Notifier,
	policy retry.Policy,
	logger *zap.Logger,
) *enrollmentService {
	return &enrollmentService{
		enrollmentRepo: enrollmentRepo,
		courseRepo:     courseRepo,
		lessonRepo:     lessonRepo,
		gate:           gate,
		notifier:       notifier,
		policy:         policy,
		logger:         logger,
		now:            storeNow,
	}
}

// Enroll enrolls the caller in a published course.
// An existing enrollment is returned unchanged with created set to false.
func (s *enrollmentService) Enroll(ctx context.Context, actor *middleware.Identity, courseID int) (*models.EnrollResult, error) {
	if err := s.gate.Authorize(ctx, actor, enrollmentRoles, nil); err != nil {
		return nil, err
	}
	if courseID <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "courseId must be greater than 0")
	}

	course, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Course, error) {
		return s.courseRepo.GetByID(ctx, courseID)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, apperr.New(apperr.CourseNotAvailable, "course is not available for enrollment")
	}

	existing, err := s.findEnrollment(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &models.EnrollResult{Enrollment: existing, Created: false}, nil
	}

	enrollment := &models.Enrollment{
		LearnerID:          actor.UserID,
		CourseID:           courseID,
		Status:             models.EnrollmentStatusEnrolled,
		CompletedLessonIDs: []int{},
		EnrolledAt:         s.now(),
	}
	err = s.enrollmentRepo.Create(ctx, enrollment)
	if errors.Is(err, storage.ErrDuplicate) {
		// A concurrent request won the insert; return its row.
		winner, findErr := s.findEnrollment(ctx, actor.UserID, courseID)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			return nil, apperr.Wrap(apperr.Unavailable, err, "the service is busy, please retry")
		}
		return &models.EnrollResult{Enrollment: winner, Created: false}, nil
	}
	if err != nil {
		return nil, storeError(err, "course not found")
	}

	s.logger.Info("learner enrolled",
		zap.Int("enrollment_id", enrollment.ID),
		zap.Int("learner_id", actor.UserID),
		zap.Int("course_id", courseID),
	)
	return &models.EnrollResult{Enrollment: enrollment, Created: true}, nil
}

// findEnrollment returns the enrollment of learner in course, or nil when there is none
func (s *enrollmentService) findEnrollment(ctx context.Context, learnerID, courseID int) (*models.Enrollment, error) {
	enrollment, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Enrollment, error) {
		return s.enrollmentRepo.GetByLearnerAndCourse(ctx, learnerID, courseID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}
	return enrollment, nil
}

func (s *enrollmentService) getEnrollment(ctx context.Context, id int) (*models.Enrollment, error) {
	enrollment, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Enrollment, error) {
		return s.enrollmentRepo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}
	return enrollment, nil
}

// ownsEnrollment is the ownership predicate of enrollment operations
func (s *enrollmentService) ownsEnrollment(id int, loaded **models.Enrollment) authz.OwnerCheck {
	return func(ctx context.Context, actor middleware.Identity) (bool, error) {
		enrollment, err := s.getEnrollment(ctx, id)
		if err != nil {
			return false, err
		}
		*loaded = enrollment
		return enrollment.LearnerID == actor.UserID, nil
	}
}

// GetEnrollment returns an enrollment owned by the caller
func (s *enrollmentService) GetEnrollment(ctx context.Context, actor *middleware.Identity, id int) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	if err := s.gate.Authorize(ctx, actor, enrollmentRoles, s.ownsEnrollment(id, &enrollment)); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// GetEnrollmentForCourse returns the caller's enrollment in a course
func (s *enrollmentService) GetEnrollmentForCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Enrollment, error) {
	if err := s.gate.Authorize(ctx, actor, enrollmentRoles, nil); err != nil {
		return nil, err
	}
	enrollment, err := s.findEnrollment(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, apperr.New(apperr.NotFound, "enrollment not found")
	}
	return enrollment, nil
}

// CompleteLesson adds a lesson to the caller's completed set.
// Lesson N>1 requires lesson N-1 to be completed first. Completing the final lesson
// marks the enrollment COMPLETED and issues exactly one certificate.
func (s *enrollmentService) CompleteLesson(ctx context.Context, actor *middleware.Identity, enrollmentID, lessonID int) (*models.CompleteLessonResponse, error) {
	var enrollment *models.Enrollment
	if err := s.gate.Authorize(ctx, actor, enrollmentRoles, s.ownsEnrollment(enrollmentID, &enrollment)); err != nil {
		return nil, err
	}
	if lessonID <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "lessonId must be greater than 0")
	}

	lessons, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) ([]models.Lesson, error) {
		return s.lessonRepo.ListByCourse(ctx, enrollment.CourseID)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}

	pos := slices.IndexFunc(lessons, func(l models.Lesson) bool { return l.ID == lessonID })
	if pos < 0 {
		return nil, apperr.New(apperr.NotFound, "lesson not found in this course")
	}

	var outcome models.CompletionOutcome
	updated, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (*models.Enrollment, error) {
		current, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
		if err != nil {
			return nil, err
		}

		switch {
		case current.Status == models.EnrollmentStatusCompleted:
			outcome = models.OutcomeAlreadyCompleted
			return current, nil
		case current.HasCompleted(lessonID):
			outcome = models.OutcomeAlreadyDone
			return current, nil
		case pos > 0 && !current.HasCompleted(lessons[pos-1].ID):
			return nil, apperr.New(apperr.LessonLocked, "complete lesson %d before lesson %d", lessons[pos-1].OrderIndex, lessons[pos].OrderIndex)
		}

		next := *current
		next.CompletedLessonIDs = append(slices.Clone(current.CompletedLessonIDs), lessonID)
		outcome = models.OutcomeLessonCompleted

		if completedCount(next.CompletedLessonIDs, lessons) == len(lessons) {
			issuedAt := s.now()
			serial := certificateSerial(next.ID, issuedAt)
			next.Status = models.EnrollmentStatusCompleted
			next.CertificateSerialHash = &serial
			next.CertificateIssuedAt = &issuedAt
			outcome = models.OutcomeCourseCompleted
		}

		if err := s.enrollmentRepo.UpdateProgress(ctx, &next); err != nil {
			return nil, err
		}
		return &next, nil
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}

	switch outcome {
	case models.OutcomeCourseCompleted:
		s.logger.Info("certificate issued",
			zap.Int("enrollment_id", updated.ID),
			zap.Int("learner_id", updated.LearnerID),
			zap.Int("course_id", updated.CourseID),
			zap.String("serial", *updated.CertificateSerialHash),
		)
		s.publishCertificate(ctx, updated)
	case models.OutcomeLessonCompleted:
		s.logger.Debug("lesson completed", zap.Int("enrollment_id", updated.ID), zap.Int("lesson_id", lessonID))
	}

	return &models.CompleteLessonResponse{
		Enrollment: updated,
		Outcome:    outcome,
		Progress:   progress(completedCount(updated.CompletedLessonIDs, lessons), len(lessons)),
	}, nil
}

func (s *enrollmentService) publishCertificate(ctx context.Context, enrollment *models.Enrollment) {
	payload := notifications.CertificateIssuedPayload{
		UserID:       enrollment.LearnerID,
		EnrollmentID: enrollment.ID,
		CourseID:     enrollment.CourseID,
		SerialHash:   *enrollment.CertificateSerialHash,
		IssuedAt:     *enrollment.CertificateIssuedAt,
	}
	if course, err := s.courseRepo.GetByID(ctx, enrollment.CourseID); err == nil {
		payload.CourseTitle = course.Title
	}
	if err := s.notifier.CertificateIssued(context.WithoutCancel(ctx), payload); err != nil {
		s.logger.Warn("failed to publish certificate", zap.Int("enrollment_id", enrollment.ID), zap.Error(err))
	}
}

// GetProgress returns all enrollments of the caller with completion percentages
func (s *enrollmentService) GetProgress(ctx context.Context, actor *middleware.Identity) ([]models.ProgressItem, error) {
	if err := s.gate.Authorize(ctx, actor, enrollmentRoles, nil); err != nil {
		return nil, err
	}

	items, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) ([]models.ProgressItem, error) {
		return s.enrollmentRepo.ListProgressByLearner(ctx, actor.UserID)
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}
	if len(items) == 0 {
		return items, nil
	}

	courseIDs := make([]int, 0, len(items))
	for _, item := range items {
		courseIDs = append(courseIDs, item.CourseID)
	}
	lessonIDs, err := retry.Do(ctx, s.policy, storage.IsRetryable, func(ctx context.Context) (map[int][]int, error) {
		return s.lessonRepo.ListIDsByCourses(ctx, courseIDs)
	})
	if err != nil {
		return nil, storeError(err, "course not found")
	}

	for i := range items {
		ids := lessonIDs[items[i].CourseID]
		done := 0
		for _, id := range items[i].CompletedLessonIDs {
			if slices.Contains(ids, id) {
				done++
			}
		}
		items[i].TotalLessons = len(ids)
		items[i].CompletedCount = done
		items[i].Progress = progress(done, len(ids))
	}
	return items, nil
}

// completedCount counts the lessons of the course present in the completed set
func completedCount(completed []int, lessons []models.Lesson) int {
	n := 0
	for _, l := range lessons {
		if slices.Contains(completed, l.ID) {
			n++
		}
	}
	return n
}

// progress is the rounded completion percentage, 0 for a course without lessons
func progress(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// certificateSerial derives a unique certificate serial for an enrollment completed at issuedAt
func certificateSerial(enrollmentID int, issuedAt time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s", enrollmentID, issuedAt.Format(time.RFC3339Nano), uuid.NewString()))
	return "CERT-" + hex.EncodeToString(sum[:])
}
