package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/handlers"
	"go.uber.org/zap"
)

var enrollmentRoles = []models.Role{models.RoleLearner, models.RoleCreator}

// EnrollmentService is the interface that wraps methods for enrollment and progression.
type EnrollmentService interface {
	// Method Enroll enrolls the caller in a published course.
	//
	// "actor" parameter is the authenticated learner.
	// "courseID" parameter is the course.
	//
	// If the course is not published, a CourseNotAvailable error will be returned together with "nil" value.
	Enroll(ctx context.Context, actor *middleware.Identity, courseID int) (*models.EnrollResult, error)
	// Method CompleteLesson marks a lesson of the caller's enrollment as completed.
	//
	// "actor" parameter is the authenticated learner.
	// "enrollmentID" parameter is the enrollment.
	// "lessonID" parameter is the lesson.
	//
	// If the previous lesson is not completed, a LessonLocked error will be returned together with "nil" value.
	CompleteLesson(ctx context.Context, actor *middleware.Identity, enrollmentID, lessonID int) (*models.CompleteLessonResponse, error)
	// Method GetProgress returns all enrollments of the caller with completion percentages.
	//
	// "actor" parameter is the authenticated learner.
	//
	// If some error occurs during data retrieve, the error will be returned together with "nil" value.
	GetProgress(ctx context.Context, actor *middleware.Identity) ([]models.ProgressItem, error)
	// Method GetEnrollment returns an enrollment owned by the caller.
	//
	// "actor" parameter is the authenticated learner.
	// "id" parameter is the enrollment.
	//
	// If the enrollment belongs to someone else, a Forbidden error will be returned together with "nil" value.
	GetEnrollment(ctx context.Context, actor *middleware.Identity, id int) (*models.Enrollment, error)
	// Method GetEnrollmentForCourse returns the caller's enrollment in a course.
	//
	// "actor" parameter is the authenticated learner.
	// "courseID" parameter is the course.
	//
	// If the caller is not enrolled, a NotFound error will be returned together with "nil" value.
	GetEnrollmentForCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Enrollment, error)
}

// EnrollmentHandler handles enrollment HTTP requests
type EnrollmentHandler struct {
	handlers.BaseHandler
	enrollmentService EnrollmentService
	guards            Guards
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollmentService EnrollmentService, guards Guards, logger *zap.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler:       handlers.BaseHandler{Logger: logger},
		enrollmentService: enrollmentService,
		guards:            guards,
	}
}

// RegisterRoutes registers enrollment routes. The router must already run the authentication middleware.
func (h *EnrollmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/enrollments", func(r chi.Router) {
		h.guards.write(r, enrollmentRoles...).Post("/", h.Enroll)
		h.guards.read(r, enrollmentRoles...).Get("/progress", h.GetProgress)
		h.guards.read(r, enrollmentRoles...).Get("/course/{courseId}", h.GetEnrollmentForCourse)
		h.guards.read(r, enrollmentRoles...).Get("/{id}", h.GetEnrollment)
		h.guards.write(r, enrollmentRoles...).Post("/{id}/complete-lesson", h.CompleteLesson)
	})
}

// Enroll handles POST /enrollments
// @Summary Enroll in a published course
// @Description Returns 201 for a new enrollment and 200 with the existing one when already enrolled
// @Tags enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param request body models.EnrollRequest true "Course to enroll in"
// @Success 201 {object} models.Enrollment "Enrolled"
// @Success 200 {object} models.Enrollment "Already enrolled"
// @Failure 404 {object} handlers.ErrorBody "Course not found"
// @Failure 409 {object} handlers.ErrorBody "Course not available"
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req models.EnrollRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	resp, err := h.enrollmentService.Enroll(r.Context(), actor(r), req.CourseID)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	h.RespondJSON(w, status, resp.Enrollment)
}

// GetProgress handles GET /enrollments/progress
// @Summary Get progress across all enrollments
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ProgressItem
// @Router /enrollments/progress [get]
func (h *EnrollmentHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	items, err := h.enrollmentService.GetProgress(r.Context(), actor(r))
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, items)
}

// GetEnrollment handles GET /enrollments/{id}
// @Summary Get an enrollment
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Enrollment ID"
// @Success 200 {object} models.Enrollment
// @Failure 403 {object} handlers.ErrorBody "Not your enrollment"
// @Failure 404 {object} handlers.ErrorBody "Enrollment not found"
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	enrollment, err := h.enrollmentService.GetEnrollment(r.Context(), actor(r), id)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, enrollment)
}

// GetEnrollmentForCourse handles GET /enrollments/course/{courseId}
// @Summary Get the caller's enrollment in a course
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "Course ID"
// @Success 200 {object} models.Enrollment
// @Failure 404 {object} handlers.ErrorBody "Not enrolled"
// @Router /enrollments/course/{courseId} [get]
func (h *EnrollmentHandler) GetEnrollmentForCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathID(r, "courseId")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	enrollment, err := h.enrollmentService.GetEnrollmentForCourse(r.Context(), actor(r), courseID)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, enrollment)
}

// CompleteLesson handles POST /enrollments/{id}/complete-lesson
// @Summary Complete a lesson
// @Description Lessons must be completed in order. Completing the final lesson issues the certificate.
// @Tags enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param id path int true "Enrollment ID"
// @Param request body models.CompleteLessonRequest true "Lesson to complete"
// @Success 200 {object} models.CompleteLessonResponse
// @Failure 403 {object} handlers.ErrorBody "Not your enrollment"
// @Failure 404 {object} handlers.ErrorBody "Lesson not in this course"
// @Failure 423 {object} handlers.ErrorBody "Previous lesson not completed"
// @Router /enrollments/{id}/complete-lesson [post]
func (h *EnrollmentHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	var req models.CompleteLessonRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	resp, err := h.enrollmentService.CompleteLesson(r.Context(), actor(r), id, req.LessonID)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, resp)
}
