// Package plan holds the subscription plan catalog: named tiers with a
// monthly token allotment and a price. Plans are created and retired by
// an administrative process; the metering service only reads them.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// Unlimited is the sentinel limit meaning a plan has no token cap.
// -1 keeps the column a plain bigint and survives round trips through
// SQL and JSON unchanged.
const Unlimited int64 = -1

// FreePlanName is the tier auto-provisioned for users with no
// subscription. A deployment without an active plan by this name is
// misconfigured.
const FreePlanName = "Free"

// Money is a price in the smallest currency unit.
type Money struct {
	AmountCents int64  `json:"amount_cents" yaml:"amount_cents"`
	Currency    string `json:"currency" yaml:"currency"`
}

// Plan is a subscription tier. Once referenced by historical billing
// periods a plan is immutable; retirement flips IsActive off so new
// subscriptions stop referencing it.
type Plan struct {
	ID                uuid.UUID `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	MonthlyTokenLimit int64     `json:"monthly_token_limit" yaml:"monthly_token_limit"`
	Price             Money     `json:"price" yaml:"price"`
	// ProviderPriceID is the payment provider's price identifier for
	// paid plans, empty for free tiers.
	ProviderPriceID string    `json:"provider_price_id,omitempty" yaml:"provider_price_id,omitempty"`
	IsActive        bool      `json:"is_active" yaml:"is_active"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
}

// IsUnlimited reports whether the plan has no token cap.
func (p Plan) IsUnlimited() bool {
	return p.MonthlyTokenLimit == Unlimited
}
