// Package usage is the metering core: an append-only log of token
// usage events, a limit evaluator over the current billing period, the
// pre-flight enforcement gate, and the read-side aggregation reports.
package usage

import (
	"time"

	"github.com/google/uuid"
)

// Event is one immutable usage fact. The billing period bounds are
// copied onto the event at write time so aggregation never has to join
// back to a subscription that may have changed since.
type Event struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	OrganizationID     *uuid.UUID `json:"organization_id,omitempty"`
	TeamID             *uuid.UUID `json:"team_id,omitempty"`
	SubscriptionID     uuid.UUID  `json:"subscription_id"`
	Endpoint           string     `json:"endpoint"`
	TokensUsed         int64      `json:"tokens_used"`
	ModelUsed          string     `json:"model_used"`
	FeatureUsed        string     `json:"feature_used"`
	RequestID          string     `json:"request_id,omitempty"`
	BillingPeriodStart time.Time  `json:"billing_period_start"`
	BillingPeriodEnd   time.Time  `json:"billing_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Entry is the caller-supplied part of a usage event.
type Entry struct {
	Endpoint    string `json:"endpoint"`
	TokensUsed  int64  `json:"tokens_used"`
	ModelUsed   string `json:"model_used"`
	FeatureUsed string `json:"feature_used"`
	RequestID   string `json:"request_id,omitempty"`
}

// Snapshot is the structured limit-state result the evaluator produces.
// Period bounds ride along so callers can display reset dates without a
// second query.
type Snapshot struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanName       string    `json:"plan_name"`
	CurrentUsage   int64     `json:"current_usage"`
	Limit          int64     `json:"limit"`
	Overage        int64     `json:"overage"`
	PercentUsed    int       `json:"percent_used"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

// Unlimited reports whether the snapshot belongs to an uncapped plan.
func (s *Snapshot) Unlimited() bool {
	return s.Limit < 0
}

// Remaining returns the tokens left in the period, zero when over the
// limit. Meaningless for unlimited plans.
func (s *Snapshot) Remaining() int64 {
	return max(0, s.Limit-s.CurrentUsage)
}

// Scope selects whose events a report covers: one user, or one
// organization.
type Scope struct {
	UserID         *uuid.UUID
	OrganizationID *uuid.UUID
}

// UserScope scopes a report to a single user.
func UserScope(userID uuid.UUID) Scope {
	return Scope{UserID: &userID}
}

// OrgScope scopes a report to an organization.
func OrgScope(orgID uuid.UUID) Scope {
	return Scope{OrganizationID: &orgID}
}

// DailyTotal is one calendar day's token consumption.
type DailyTotal struct {
	Day    time.Time `json:"day"`
	Tokens int64     `json:"tokens"`
	Events int64     `json:"events"`
}

// DimensionTotal is token consumption grouped by one dimension value
// (feature, model, or team).
type DimensionTotal struct {
	Key    string `json:"key"`
	Tokens int64  `json:"tokens"`
	Events int64  `json:"events"`
}

// UserTotal is one user's consumption within an organization report.
type UserTotal struct {
	UserID uuid.UUID `json:"user_id"`
	Tokens int64     `json:"tokens"`
	Events int64     `json:"events"`
}
