package usage

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/plan"
)

// Evaluator answers "where does this user stand against their limit"
// by summing the current period's events. It caches nothing: every call
// rereads the store so concurrent requests see live numbers.
type Evaluator struct {
	store   Store
	subs    SubscriptionResolver
	catalog *plan.Catalog
	log     *slog.Logger
}

// NewEvaluator wires an Evaluator.
func NewEvaluator(store Store, subs SubscriptionResolver, catalog *plan.Catalog, log *slog.Logger) *Evaluator {
	if store == nil {
		panic("usage: Store is required")
	}
	if subs == nil {
		panic("usage: SubscriptionResolver is required")
	}
	if catalog == nil {
		panic("usage: plan catalog is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{store: store, subs: subs, catalog: catalog, log: log}
}

// Evaluate resolves the user's subscription (auto-provisioning if
// needed) and returns their limit snapshot. Unlimited plans skip the
// summation entirely and always report zero usage.
//
// An expired period is evaluated against its original bounds; rollover
// is an explicit subscription operation, not a read side effect.
func (e *Evaluator) Evaluate(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	sub, err := e.subs.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	p, err := e.catalog.ByName(sub.PlanName)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SubscriptionID: sub.ID,
		PlanName:       p.Name,
		Limit:          p.MonthlyTokenLimit,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
	}

	if p.IsUnlimited() {
		snap.PercentUsed = -1
		return snap, nil
	}

	total, err := e.store.SumInPeriod(ctx, sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	snap.CurrentUsage = total
	snap.Overage = max(0, total-p.MonthlyTokenLimit)
	snap.PercentUsed = percentUsed(total, p.MonthlyTokenLimit)
	return snap, nil
}

// percentUsed caps at 100 so dashboards render overage as a full bar.
func percentUsed(used, limit int64) int {
	if limit <= 0 {
		return 100
	}
	return int(min((used*100)/limit, 100))
}
