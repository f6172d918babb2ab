package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscriptions and their billing periods.
type Store interface {
	// GetActiveByUser returns the user's active subscription, or
	// ErrNotFound.
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Create inserts a subscription and its opening billing period in
	// one transaction. Returns ErrAlreadyActive when the user already
	// has an active row (unique-constraint race on auto-provision).
	Create(ctx context.Context, sub *Subscription, period *BillingPeriod) error

	// Cancel marks the subscription canceled. Canceling an already
	// canceled row is a no-op.
	Cancel(ctx context.Context, subID uuid.UUID) error

	// Renew moves the subscription onto a fresh period and inserts the
	// matching billing period row in one transaction.
	Renew(ctx context.Context, subID uuid.UUID, period *BillingPeriod) error

	// LatestPeriod returns the subscription's most recent billing
	// period, or ErrNotFound.
	LatestPeriod(ctx context.Context, subID uuid.UUID) (*BillingPeriod, error)
}
