package middleware

import (
	"context"
	"net/http"

	"github.com/skillpath/backend/libs/handlers"
	"go.uber.org/zap"
)

// RoleAuthorizer decides whether an identity holds one of the required roles.
// A nil identity means the caller could not be resolved.
type RoleAuthorizer interface {
	AuthorizeRoles(ctx context.Context, identity *Identity, roles ...string) error
}

// RoleMiddleware rejects requests whose caller does not hold one of roles.
// It must run after AuthMiddleware and before any idempotency handling, so denied
// requests never reach the ledger.
func RoleMiddleware(gate RoleAuthorizer, logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	base := handlers.BaseHandler{Logger: logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity
			if id, ok := GetIdentity(r.Context()); ok {
				identity = &id
			}

			if err := gate.AuthorizeRoles(r.Context(), identity, roles...); err != nil {
				base.RespondAppError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
