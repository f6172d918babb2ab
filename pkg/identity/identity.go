// Package identity carries the authenticated caller through the request
// context. Authentication happens upstream at the API gateway; this
// service trusts the identity headers it forwards.
package identity

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Role names forwarded by the gateway.
const (
	RoleOrgAdmin = "org_admin"
)

// Headers set by the gateway on every authenticated request.
const (
	HeaderUserID = "X-User-Id"
	HeaderEmail  = "X-User-Email"
	HeaderRoles  = "X-User-Roles"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Roles  []string
}

// HasRole reports whether the caller carries the given role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type ctxKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller identity, if present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware extracts the gateway identity headers into the context.
// Requests without a valid user ID pass through unauthenticated; route
// handlers decide whether that is acceptable.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		id := Identity{
			UserID: userID,
			Email:  r.Header.Get(HeaderEmail),
		}
		if raw := r.Header.Get(HeaderRoles); raw != "" {
			for _, role := range strings.Split(raw, ",") {
				if role = strings.TrimSpace(role); role != "" {
					id.Roles = append(id.Roles, role)
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
