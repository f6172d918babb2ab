// Package billing defines the billing context shared by the metering
// components: which user an operation is charged to, and the optional
// organization and team it is attributed to.
//
// The context is resolved once per request by a Directory implementation
// and threaded through the resolver and recorder, instead of each
// component re-deriving membership on its own.
package billing

import (
	"context"

	"github.com/google/uuid"
)

// Context identifies who pays for an operation and how it is attributed.
// OrganizationID and TeamID are attribution only; correctness never
// depends on them being present.
type Context struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	TeamID         *uuid.UUID
}

// Directory resolves a user's billing context from the membership data
// owned by the identity side of the product (profiles, team membership).
type Directory interface {
	Resolve(ctx context.Context, userID uuid.UUID) (Context, error)
}

type ctxKey struct{}

// WithContext stores a resolved billing context on ctx.
func WithContext(ctx context.Context, bc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, bc)
}

// FromContext returns the billing context stored on ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	bc, ok := ctx.Value(ctxKey{}).(Context)
	return bc, ok
}
