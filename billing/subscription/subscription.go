// Package subscription resolves which plan a user is billed under.
//
// Every user has at most one active subscription. Users who never chose
// a plan are auto-provisioned onto the Free tier the first time anything
// asks about their usage, so the rest of the metering pipeline can
// assume a subscription always exists.
package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status of a subscription row. History is kept: plan changes cancel the
// old row instead of mutating it.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// periodLength is the billing period for auto-provisioned and renewed
// subscriptions. Paid plans managed by the payment provider get their
// period bounds from provider webhooks instead.
const periodLength = 30 * 24 * time.Hour

// Subscription binds a user (and optionally their organization) to a
// plan for a recurring period.
type Subscription struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	OrganizationID     *uuid.UUID `json:"organization_id,omitempty"`
	PlanID             uuid.UUID  `json:"plan_id"`
	PlanName           string     `json:"plan_name"`
	Status             Status     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PeriodExpired reports whether the subscription's current period ended
// before now. Expired subscriptions stay active until an explicit renew;
// readers must treat their numbers as stale.
func (s *Subscription) PeriodExpired(now time.Time) bool {
	return now.After(s.CurrentPeriodEnd)
}

// BillingPeriod is a denormalized snapshot of one subscription's
// allotment for one period, created alongside the subscription as an
// invoicing anchor. The usage event log, not this row, is authoritative
// for live usage.
type BillingPeriod struct {
	ID                 uuid.UUID `json:"id"`
	SubscriptionID     uuid.UUID `json:"subscription_id"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	TokensUsed         int64     `json:"tokens_used"`
	TokensLimit        int64     `json:"tokens_limit"`
	OverageTokens      int64     `json:"overage_tokens"`
	AmountChargedCents int64     `json:"amount_charged_cents"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}
