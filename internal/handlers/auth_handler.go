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

// AuthService is the interface that wraps methods for authentication business logic.
type AuthService interface {
	// Method Register validates the request, creates a LEARNER account and returns an access token.
	//
	// "req" parameter contains name, email and password.
	//
	// If the request is invalid or the email is taken, the error will be returned together with "nil" value.
	Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error)
	// Method Login checks the credentials and returns an access token.
	//
	// "req" parameter contains email and password.
	//
	// If the credentials are wrong, an Unauthenticated error will be returned together with "nil" value.
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)
	// Method GetCurrentUser returns the user record of the caller.
	//
	// "actor" parameter is the authenticated caller.
	//
	// If the user does not exist, the error will be returned together with "nil" value.
	GetCurrentUser(ctx context.Context, actor *middleware.Identity) (*models.User, error)
}

// CreatorService is the interface that wraps methods for the creator application workflow.
type CreatorService interface {
	// Method Apply submits a creator application for the calling learner.
	//
	// "actor" parameter is the authenticated caller.
	// "req" parameter contains the bio and the portfolio URL.
	//
	// If validation fails or an application is already pending, the error will be returned together with "nil" value.
	Apply(ctx context.Context, actor *middleware.Identity, req *models.ApplyCreatorRequest) (*models.CreatorApplication, error)
	// Method ApproveCreator approves a pending application and promotes the applicant.
	//
	// "actor" parameter is the authenticated admin.
	// "userID" parameter is the applicant.
	//
	// If the user has no pending application, the error will be returned together with "nil" value.
	ApproveCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error)
	// Method RejectCreator rejects a pending application.
	//
	// "actor" parameter is the authenticated admin.
	// "userID" parameter is the applicant.
	//
	// If the user has no pending application, the error will be returned together with "nil" value.
	RejectCreator(ctx context.Context, actor *middleware.Identity, userID int) (*models.User, error)
	// Method ListApplications returns a page of applications in a status.
	//
	// "actor" parameter is the authenticated admin.
	// "status" parameter filters applications, PENDING when empty.
	// "limit" and "offset" parameters select the page.
	//
	// If the offset token is malformed, the error will be returned together with "nil" value.
	ListApplications(ctx context.Context, actor *middleware.Identity, status string, limit int, offset string) (*models.Page[models.CreatorApplication], error)
}

// AuthHandler handles authentication and account HTTP requests
type AuthHandler struct {
	handlers.BaseHandler
	authService    AuthService
	creatorService CreatorService
	guards         Guards
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService AuthService,
	creatorService CreatorService,
	guards Guards,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		BaseHandler:    handlers.BaseHandler{Logger: logger},
		authService:    authService,
		creatorService: creatorService,
		guards:         guards,
	}
}

// RegisterPublicRoutes registers routes that do not require authentication
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
}

// RegisterRoutes registers account routes. The router must already run the authentication middleware.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		h.guards.read(r, anyRole...).Get("/me", h.GetCurrentUser)
		h.guards.write(r, models.RoleLearner).Post("/apply-creator", h.ApplyCreator)
	})
}

// Register handles POST /auth/register
// @Summary Register a new user
// @Description Create a LEARNER account and return an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration request"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} handlers.ErrorBody "Validation failed"
// @Failure 409 {object} handlers.ErrorBody "Email already exists"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	resp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /auth/login
// @Summary Log in
// @Description Check the credentials and return an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login request"
// @Success 200 {object} models.AuthResponse
// @Failure 401 {object} handlers.ErrorBody "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, resp)
}

// GetCurrentUser handles GET /users/me
// @Summary Get the current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} handlers.ErrorBody "Not authenticated"
// @Router /users/me [get]
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetCurrentUser(r.Context(), actor(r))
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, user)
}

// ApplyCreator handles POST /users/apply-creator
// @Summary Apply to become a creator
// @Description Submit a creator application. Bio must be at least 100 characters and the portfolio an absolute http(s) URL.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Deduplication key"
// @Param request body models.ApplyCreatorRequest true "Creator application"
// @Success 201 {object} models.CreatorApplication
// @Failure 400 {object} handlers.ErrorBody "Validation failed"
// @Failure 403 {object} handlers.ErrorBody "Only learners can apply"
// @Failure 409 {object} handlers.ErrorBody "An application is already pending"
// @Router /users/apply-creator [post]
func (h *AuthHandler) ApplyCreator(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyCreatorRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondAppError(w, err)
		return
	}

	app, err := h.creatorService.Apply(r.Context(), actor(r), &req)
	if err != nil {
		h.RespondAppError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, app)
}
