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

// AdminHandler handles the admin review queue
type AdminHandler struct {
	handlers.BaseHandler
	catalogService CatalogService
	creatorService CreatorService
	guards         Guards
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(catalogService CatalogService, creatorService CreatorService, guards Guards, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		BaseHandler:    handlers.BaseHandler{Logger: logger},
		catalogService: catalogService,
		creatorService: creatorService,
		guards:         guards,
	}
}

// RegisterRoutes registers admin review routes. The router must already run the authentication middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/review", func(r chi.Router) {
		h.guards.read(r, models.RoleAdmin).Get("/courses", h.ListReviewCourses)
		h.guards.write(r, models.RoleAdmin).Patch("/courses/{id}/approve", h.ApproveCourse)
		h.guards.write(r, models.RoleAdmin).Patch("/courses/{id}/reject", h.RejectCourse)
		h.guards.read(r, models.RoleAdmin).Get("/creators", h.ListCreatorApplications)
		h.guards.write(r, models.RoleAdmin).Patch("/creators/{userId}/approve", h.ApproveCreator)
		h.guards.write(r, models.RoleAdmin).Patch("/creators/{userId}/reject", h.RejectCreator)
	})
}

// ListReviewCourses handles GET /admin/review/courses
// @Summary List courses for review
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query []string false "Statuses to include (default DRAFT)" collectionFormat(csv)
// @Param limit query int false "Page size (default 10, max 100)"
// @Param offset query string false "Opaque page token"
// @Success 200 {object} models.Page[models.Course]
// @Failure 403 {object} handlers.ErrorBody "Admins only"
// @Router /admin/review/courses [get]
func (h *AdminHandler) ListReviewCourses(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	page, err := h.catalogService.ListReviewCourses(r.Context(), actor(r), statusParams(r), limit, offset)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, page)
}

// ApproveCourse handles PATCH /admin/review/courses/{id}/approve
// @Summary Approve a submitted course
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param id path int true "Course ID"
// @Param request body models.CourseReviewRequest false "Optional reviewer note"
// @Success 200 {object} models.Course
// @Failure 404 {object} handlers.ErrorBody "Course not found"
// @Failure 409 {object} handlers.ErrorBody "Course is not a submitted draft"
// @Router /admin/review/courses/{id}/approve [patch]
func (h *AdminHandler) ApproveCourse(w http.ResponseWriter, r *http.Request) {
	h.reviewCourse(w, r, h.catalogService.ApproveCourse)
}

// RejectCourse handles PATCH /admin/review/courses/{id}/reject
// @Summary Reject a submitted course
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param id path int true "Course ID"
// @Param request body models.CourseReviewRequest false "Optional reviewer note"
// @Success 200 {object} models.Course
// @Failure 404 {object} handlers.ErrorBody "Course not found"
// @Failure 409 {object} handlers.ErrorBody "Course is not a submitted draft"
// @Router /admin/review/courses/{id}/reject [patch]
func (h *AdminHandler) RejectCourse(w http.ResponseWriter, r *http.Request) {
	h.reviewCourse(w, r, h.catalogService.RejectCourse)
}

func (h *AdminHandler) reviewCourse(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, actor *middleware.Identity, courseID int, note string) (*models.Course, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	var req models.CourseReviewRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	course, err := decide(r.Context(), actor(r), id, req.Note)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, course)
}

// ListCreatorApplications handles GET /admin/review/creators
// @Summary List creator applications
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "PENDING (default), APPROVED or REJECTED"
// @Param limit query int false "Page size (default 10, max 100)"
// @Param offset query string false "Opaque page token"
// @Success 200 {object} models.Page[models.CreatorApplication]
// @Failure 403 {object} handlers.ErrorBody "Admins only"
// @Router /admin/review/creators [get]
func (h *AdminHandler) ListCreatorApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	page, err := h.creatorService.ListApplications(r.Context(), actor(r), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, page)
}

// ApproveCreator handles PATCH /admin/review/creators/{userId}/approve
// @Summary Approve a creator application
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param userId path int true "Applicant user ID"
// @Success 200 {object} models.User
// @Failure 404 {object} handlers.ErrorBody "User not found"
// @Failure 409 {object} handlers.ErrorBody "No pending application"
// @Router /admin/review/creators/{userId}/approve [patch]
func (h *AdminHandler) ApproveCreator(w http.ResponseWriter, r *http.Request) {
	h.reviewCreator(w, r, h.creatorService.ApproveCreator)
}

// RejectCreator handles PATCH /admin/review/creators/{userId}/reject
// @Summary Reject a creator application
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param userId path int true "Applicant user ID"
// @Success 200 {object} models.User
// @Failure 404 {object} handlers.ErrorBody "User not found"
// @Failure 409 {object} handlers.ErrorBody "No pending application"
// @Router /admin/review/creators/{userId}/reject [patch]
func (h *AdminHandler) RejectCreator(w http.ResponseWriter, r *http.Request) {
	h.reviewCreator(w, r, h.creatorService.RejectCreator)
}

func (h *AdminHandler) reviewCreator(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error)) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	user, err := decide(r.Context(), actor(r), userID)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, user)
}
