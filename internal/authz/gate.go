// Package authz evaluates role and ownership policy before any mutation is applied
package authz

import (
	"context"
	"slices"

	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"go.uber.org/zap"
)

// OwnerCheck reports whether the actor owns the resource an operation targets.
// Its error, such as a NotFound for a missing resource, is surfaced unchanged.
type OwnerCheck func(ctx context.Context, actor middleware.Identity) (bool, error)

// Gate is the authorization policy evaluator.
// It reads the identity and the ownership predicate only and never writes.
type Gate struct {
	logger *zap.Logger
}

// NewGate creates a new authorization gate
func NewGate(logger *zap.Logger) *Gate {
	return &Gate{logger: logger}
}

// Authorize allows the call when the identity is resolved, holds one of roles and, if owner is
// given, owns the target. Denials are returned as Unauthenticated or Forbidden errors.
func (g *Gate) Authorize(ctx context.Context, identity *middleware.Identity, roles []models.Role, owner OwnerCheck) error {
	if identity == nil || identity.UserID <= 0 {
		return apperr.New(apperr.Unauthenticated, "authentication required")
	}

	if !slices.Contains(roles, models.Role(identity.Role)) {
		g.logger.Debug("role denied",
			zap.Int("user_id", identity.UserID),
			zap.String("role", identity.Role),
			zap.Any("required", roles),
		)
		return apperr.New(apperr.Forbidden, "this action requires one of the roles %v", roles)
	}

	if owner == nil {
		return nil
	}

	owns, err := owner(ctx, *identity)
	if err != nil {
		return err
	}
	if !owns {
		g.logger.Debug("ownership denied", zap.Int("user_id", identity.UserID))
		return apperr.New(apperr.Forbidden, "you do not own this resource")
	}
	return nil
}

// AuthorizeRoles is the route-level role check used by the role middleware
func (g *Gate) AuthorizeRoles(ctx context.Context, identity *middleware.Identity, roles ...string) error {
	required := make([]models.Role, len(roles))
	for i, r := range roles {
		required[i] = models.Role(r)
	}
	return g.Authorize(ctx, identity, required, nil)
}

// Roles converts role constants to the string form the role middleware takes
func Roles(roles ...models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
