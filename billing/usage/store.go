package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the append side of the event log plus the single summation
// the evaluator needs.
type Store interface {
	// Append inserts one immutable event. Events are never updated or
	// deleted.
	Append(ctx context.Context, event *Event) error

	// SumInPeriod returns the total tokens recorded for a subscription
	// with created_at within [start, end] inclusive.
	SumInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) (int64, error)
}

// ReportStore is the read side consumed by analytics surfaces. All
// queries scan events in the requested window; there is no materialized
// rollup to keep consistent.
type ReportStore interface {
	// Recent returns the newest events in scope since the given time,
	// newest first, capped at limit.
	Recent(ctx context.Context, scope Scope, since time.Time, limit int) ([]Event, error)

	// DailyTotals groups scope events by the calendar date (UTC) of
	// created_at.
	DailyTotals(ctx context.Context, scope Scope, since time.Time) ([]DailyTotal, error)

	// TotalsByFeature groups scope events by feature_used.
	TotalsByFeature(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error)

	// TotalsByModel groups scope events by model_used.
	TotalsByModel(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error)

	// TotalsByTeam groups an organization's events by team. Events with
	// no team attribution are reported under the empty key.
	TotalsByTeam(ctx context.Context, orgID uuid.UUID, since time.Time) ([]DimensionTotal, error)

	// TopUsers returns the n heaviest consumers in an organization.
	TopUsers(ctx context.Context, orgID uuid.UUID, since time.Time, n int) ([]UserTotal, error)

	// EventsInPeriod returns every event recorded against a
	// subscription with created_at within [start, end] inclusive,
	// oldest first. Feeds period exports.
	EventsInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) ([]Event, error)
}
