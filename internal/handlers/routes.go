package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/idempotency"
	"github.com/skillpath/backend/internal/models"
	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"go.uber.org/zap"
)

var anyRole = []models.Role{models.RoleLearner, models.RoleCreator, models.RoleAdmin}

// Guards builds the per-route middleware chains: the role gate for every route and,
// for mutations, the idempotency ledger after it
type Guards struct {
	Authorize  func(roles ...string) func(http.Handler) http.Handler
	Idempotent func(http.Handler) http.Handler
}

// NewGuards creates route guards backed by the authorization gate and the idempotency ledger
func NewGuards(gate *authz.Gate, ledger *idempotency.Ledger, logger *zap.Logger) Guards {
	return Guards{
		Authorize: func(roles ...string) func(http.Handler) http.Handler {
			return middleware.RoleMiddleware(gate, logger, roles...)
		},
		Idempotent: idempotency.Middleware(ledger, logger),
	}
}

func (g Guards) read(r chi.Router, roles ...models.Role) chi.Router {
	return r.With(g.Authorize(authz.Roles(roles...)...))
}

func (g Guards) write(r chi.Router, roles ...models.Role) chi.Router {
	return r.With(g.Authorize(authz.Roles(roles...)...), g.Idempotent)
}

// actor returns the identity resolved by the authentication middleware, or nil
func actor(r *http.Request) *middleware.Identity {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		return nil
	}
	return &identity
}

// pathID parses a positive integer URL parameter
func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.ValidationFailed, "invalid %s", name)
	}
	return id, nil
}

// pageParams reads the limit and offset query parameters. The offset is an opaque token.
func pageParams(r *http.Request) (int, string, error) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			return 0, "", apperr.New(apperr.ValidationFailed, "limit must be a number")
		}
		limit = l
	}
	return limit, q.Get("offset"), nil
}

// statusParams collects repeated or comma separated status query parameters
func statusParams(r *http.Request) []string {
	var out []string
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// decodeOptionalJSON decodes the body into dst when one is present
func decodeOptionalJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Wrap(apperr.ValidationFailed, err, "failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.ValidationFailed, err, "invalid request body")
	}
	return nil
}
