package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/stretchr/testify/assert"
)

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		expectedStatus int
	}{
		{name: "success", body: `{"name":"Ana","email":"ana@example.com","password":"Secret123"}`, expectedStatus: http.StatusCreated},
		{name: "duplicate email", body: `{"name":"Ana","email":"ana@example.com","password":"Secret123"}`, err: apperr.New(apperr.StateConflict, "email already exists"), expectedStatus: http.StatusConflict},
		{name: "validation", body: `{"name":"Ana","email":"nope","password":"x"}`, err: apperr.New(apperr.ValidationFailed, "email must be a valid email"), expectedStatus: http.StatusBadRequest},
		{name: "empty body", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newTestRouter(t)
			svc.auth.resp = &models.AuthResponse{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour), User: &models.User{ID: 2}}
			svc.auth.err = tt.err

			w := serve(router, request{method: http.MethodPost, path: "/api/auth/register", body: tt.body})

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestAuthHandler_LoginIsPublic(t *testing.T) {
	router, svc := newTestRouter(t)
	svc.auth.resp = &models.AuthResponse{AccessToken: "token", User: &models.User{ID: 2}}

	w := serve(router, request{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ana@example.com","password":"Secret123"}`})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accessToken":"token"`)

	svc.auth.err = apperr.New(apperr.Unauthenticated, "invalid credentials")
	w = serve(router, request{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ana@example.com","password":"wrong"}`})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_CurrentUser(t *testing.T) {
	router, svc := newTestRouter(t)
	svc.auth.user = &models.User{ID: 1, Role: models.RoleAdmin, PasswordHash: "hash"}

	w := serve(router, request{method: http.MethodGet, path: "/api/users/me", actor: admin})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hash")

	w = serve(router, request{method: http.MethodGet, path: "/api/users/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_ApplyCreator(t *testing.T) {
	tests := []struct {
		name           string
		actor          string
		err            error
		expectedStatus int
		expectedCalls  int
	}{
		{name: "learner applies", actor: learner, expectedStatus: http.StatusCreated, expectedCalls: 1},
		{name: "creator cannot apply", actor: creator, expectedStatus: http.StatusForbidden},
		{name: "already pending", actor: learner, err: apperr.New(apperr.StateConflict, "an application is already pending"), expectedStatus: http.StatusConflict, expectedCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newTestRouter(t)
			svc.creator.app = &models.CreatorApplication{ID: 1, UserID: 2, Status: models.CreatorStatusPending}
			svc.creator.err = tt.err

			w := serve(router, request{
				method: http.MethodPost,
				path:   "/api/users/apply-creator",
				body:   `{"bio":"I teach","portfolioUrl":"https://example.com"}`,
				actor:  tt.actor,
			})

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCalls, svc.creator.calls)
		})
	}
}
