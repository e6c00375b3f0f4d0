package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/handlers"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller of a request.
// Role is loaded from the user store on every request, never taken from the token.
type Identity struct {
	UserID int
	Role   string
}

// TokenValidator validates an access token and returns the user it was issued for
type TokenValidator interface {
	ValidateAccessToken(token string) (int, error)
}

// IdentityResolver loads the current role of a user.
// It returns an apperr NotFound error when the user no longer exists.
type IdentityResolver interface {
	ResolveRole(ctx context.Context, userID int) (string, error)
}

// AuthMiddleware validates the JWT access token and attaches the caller's Identity to the context
func AuthMiddleware(tokens TokenValidator, resolver IdentityResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	base := handlers.BaseHandler{Logger: logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				base.RespondError(w, apperr.Unauthenticated, "authentication required")
				return
			}

			userID, err := tokens.ValidateAccessToken(token)
			if err != nil {
				base.RespondError(w, apperr.Unauthenticated, "invalid or expired token")
				return
			}

			role, err := resolver.ResolveRole(r.Context(), userID)
			if err != nil {
				if apperr.Is(err, apperr.NotFound) {
					base.RespondError(w, apperr.Unauthenticated, "user no longer exists")
					return
				}
				base.RespondAppError(w, err)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reads the bearer token from the Authorization header, falling back to the access_token cookie
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// WithIdentity returns a copy of ctx carrying the identity
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity retrieves the caller identity from context
func GetIdentity(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) (int, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok {
		return 0, false
	}
	return identity.UserID, true
}
