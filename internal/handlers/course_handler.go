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

// CatalogService is the interface that wraps methods for course authoring, review and browsing.
type CatalogService interface {
	// Method CreateCourse creates a DRAFT course owned by the caller.
	//
	// "actor" parameter is the authenticated creator.
	// "req" parameter contains title and description.
	//
	// If validation fails, the error will be returned together with "nil" value.
	CreateCourse(ctx context.Context, actor *middleware.Identity, req *models.CreateCourseRequest) (*models.Course, error)
	// Method AddLesson appends a lesson to a draft course owned by the caller.
	//
	// "actor" parameter is the authenticated creator.
	// "req" parameter contains the course, the lesson content and an optional order index.
	//
	// If the course is not a draft or the order index is not the next one, the error will be returned together with "nil" value.
	AddLesson(ctx context.Context, actor *middleware.Identity, req *models.CreateLessonRequest) (*models.Lesson, error)
	// Method SubmitForReview submits a draft course for admin review.
	//
	// "actor" parameter is the authenticated creator.
	// "courseID" parameter is the course to submit.
	//
	// If the course has no lessons or its order is not contiguous, the error will be returned together with "nil" value.
	SubmitForReview(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error)
	// Method ReviseCourse creates a new draft from a rejected course.
	//
	// "actor" parameter is the authenticated creator.
	// "courseID" parameter is the rejected course.
	//
	// If the course is not rejected, the error will be returned together with "nil" value.
	ReviseCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error)
	// Method ApproveCourse publishes a submitted draft.
	//
	// "actor" parameter is the authenticated admin.
	// "courseID" parameter is the course to approve.
	// "note" parameter is an optional reviewer note.
	//
	// If the course is not a submitted draft, the error will be returned together with "nil" value.
	ApproveCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error)
	// Method RejectCourse rejects a submitted draft.
	//
	// "actor" parameter is the authenticated admin.
	// "courseID" parameter is the course to reject.
	// "note" parameter is an optional reviewer note.
	//
	// If the course is not a submitted draft, the error will be returned together with "nil" value.
	RejectCourse(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error)
	// Method ListCourses returns a page of published courses.
	//
	// "actor" parameter is the authenticated caller.
	// "limit" and "offset" parameters select the page.
	//
	// If the offset token is malformed, the error will be returned together with "nil" value.
	ListCourses(ctx context.Context, actor *middleware.Identity, limit int, offset string) (*models.Page[models.Course], error)
	// Method ListReviewCourses returns a page of courses in the given statuses for admins.
	//
	// "actor" parameter is the authenticated admin.
	// "statuses" parameter filters courses, DRAFT when empty.
	// "limit" and "offset" parameters select the page.
	//
	// If a status or the offset token is invalid, the error will be returned together with "nil" value.
	ListReviewCourses(ctx context.Context, actor *middleware.Identity, statuses []string, limit int, offset string) (*models.Page[models.Course], error)
	// Method GetCourse returns a course with its lessons.
	//
	// "actor" parameter is the authenticated caller.
	// "courseID" parameter is the course.
	//
	// If the course does not exist or is not visible to the caller, a NotFound error will be returned together with "nil" value.
	GetCourse(ctx context.Context, actor *middleware.Identity, courseID int) (*models.Course, error)
	// Method ListLessons returns the ordered lessons of a course.
	//
	// "actor" parameter is the authenticated caller.
	// "courseID" parameter is the course.
	//
	// If the course does not exist or is not visible to the caller, a NotFound error will be returned together with "nil" value.
	ListLessons(ctx context.Context, actor *middleware.Identity, courseID int) ([]models.Lesson, error)
	// Method GetLesson returns a single lesson.
	//
	// "actor" parameter is the authenticated caller.
	// "lessonID" parameter is the lesson.
	//
	// If the lesson does not exist or its course is not visible to the caller, a NotFound error will be returned together with "nil" value.
	GetLesson(ctx context.Context, actor *middleware.Identity, lessonID int) (*models.Lesson, error)
}

// CourseHandler handles course and lesson HTTP requests
type CourseHandler struct {
	handlers.BaseHandler
	catalogService CatalogService
	guards         Guards
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(catalogService CatalogService, guards Guards, logger *zap.Logger) *CourseHandler {
	return &CourseHandler{
		BaseHandler:    handlers.BaseHandler{Logger: logger},
		catalogService: catalogService,
		guards:         guards,
	}
}

// RegisterRoutes registers course and lesson routes. The router must already run the authentication middleware.
func (h *CourseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/courses", func(r chi.Router) {
		h.guards.read(r, anyRole...).Get("/", h.ListCourses)
		h.guards.write(r, models.RoleCreator).Post("/", h.CreateCourse)
		h.guards.read(r, anyRole...).Get("/{id}", h.GetCourse)
		h.guards.write(r, models.RoleCreator).Post("/{id}/submit", h.SubmitForReview)
		h.guards.write(r, models.RoleCreator).Post("/{id}/revise", h.ReviseCourse)
	})
	r.Route("/lessons", func(r chi.Router) {
		h.guards.write(r, models.RoleCreator).Post("/", h.AddLesson)
		h.guards.read(r, anyRole...).Get("/course/{courseId}", h.ListLessons)
		h.guards.read(r, anyRole...).Get("/{id}", h.GetLesson)
	})
}

// ListCourses handles GET /courses
// @Summary List published courses
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 10, max 100)"
// @Param offset query string false "Opaque page token"
// @Success 200 {object} models.Page[models.Course]
// @Failure 400 {object} handlers.ErrorBody "Invalid page parameters"
// @Router /courses [get]
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	page, err := h.catalogService.ListCourses(r.Context(), actor(r), limit, offset)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, page)
}

// CreateCourse handles POST /courses
// @Summary Create a draft course
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param request body models.CreateCourseRequest true "Course"
// @Success 201 {object} models.Course
// @Failure 400 {object} handlers.ErrorBody "Validation failed"
// @Failure 403 {object} handlers.ErrorBody "Only creators can create courses"
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCourseRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	course, err := h.catalogService.CreateCourse(r.Context(), actor(r), &req)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, course)
}

// GetCourse handles GET /courses/{id}
// @Summary Get a course with its lessons
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param id path int true "Course ID"
// @Success 200 {object} models.Course
// @Failure 404 {object} handlers.ErrorBody "Course not found"
// @Router /courses/{id} [get]
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	course, err := h.catalogService.GetCourse(r.Context(), actor(r), id)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, course)
}

// SubmitForReview handles POST /courses/{id}/submit
// @Summary Submit a draft course for review
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param id path int true "Course ID"
// @Success 200 {object} models.Course
// @Failure 400 {object} handlers.ErrorBody "Course has no lessons or a gap in lesson order"
// @Failure 403 {object} handlers.ErrorBody "Not the course owner"
// @Failure 409 {object} handlers.ErrorBody "Course is not a draft"
// @Router /courses/{id}/submit [post]
func (h *CourseHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	course, err := h.catalogService.SubmitForReview(r.Context(), actor(r), id)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, course)
}

// ReviseCourse handles POST /courses/{id}/revise
// @Summary Create a new draft from a rejected course
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param id path int true "Rejected course ID"
// @Success 201 {object} models.Course
// @Failure 403 {object} handlers.ErrorBody "Not the course owner"
// @Failure 409 {object} handlers.ErrorBody "Course is not rejected"
// @Router /courses/{id}/revise [post]
func (h *CourseHandler) ReviseCourse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	course, err := h.catalogService.ReviseCourse(r.Context(), actor(r), id)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, course)
}

// AddLesson handles POST /lessons
// @Summary Append a lesson to a draft course
// @Tags lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param request body models.CreateLessonRequest true "Lesson"
// @Success 201 {object} models.Lesson
// @Failure 400 {object} handlers.ErrorBody "Validation failed or order index out of sequence"
// @Failure 403 {object} handlers.ErrorBody "Not the course owner"
// @Failure 409 {object} handlers.ErrorBody "Course is not a draft"
// @Router /lessons [post]
func (h *CourseHandler) AddLesson(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLessonRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	lesson, err := h.catalogService.AddLesson(r.Context(), actor(r), &req)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, lesson)
}

// ListLessons handles GET /lessons/course/{courseId}
// @Summary List the lessons of a course
// @Tags lessons
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "Course ID"
// @Success 200 {array} models.Lesson
// @Failure 404 {object} handlers.ErrorBody "Course not found"
// @Router /lessons/course/{courseId} [get]
func (h *CourseHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathID(r, "courseId")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	lessons, err := h.catalogService.ListLessons(r.Context(), actor(r), courseID)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, lessons)
}

// GetLesson handles GET /lessons/{id}
// @Summary Get a lesson
// @Tags lessons
// @Produce json
// @Security BearerAuth
// @Param id path int true "Lesson ID"
// @Success 200 {object} models.Lesson
// @Failure 404 {object} handlers.ErrorBody "Lesson not found"
// @Router /lessons/{id} [get]
func (h *CourseHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	lesson, err := h.catalogService.GetLesson(r.Context(), actor(r), id)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, lesson)
}
