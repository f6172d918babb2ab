package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/plan"
)

// Service resolves and provisions subscriptions. It holds no state
// beyond its dependencies; every call rereads the store so concurrent
// requests never act on a stale subscription.
type Service struct {
	store     Store
	catalog   *plan.Catalog
	directory billing.Directory
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, used by tests to pin periods.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a resolver. All three dependencies are required;
// passing nil is a programming error and panics at startup.
func NewService(store Store, catalog *plan.Catalog, directory billing.Directory, log *slog.Logger, opts ...Option) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if catalog == nil {
		panic("subscription: plan catalog is required")
	}
	if directory == nil {
		panic("subscription: billing directory is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		store:     store,
		catalog:   catalog,
		directory: directory,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateActive returns the user's active subscription, provisioning
// a Free-tier subscription and opening billing period when none exists.
// The second call for the same user is a pure read.
//
// An expired period is returned as-is; renewal is an explicit operation
// (Renew), never a side effect of a read.
func (s *Service) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	free, err := s.catalog.Free()
	if err != nil {
		s.log.ErrorContext(ctx, "no active Free plan in catalog, cannot auto-provision",
			"user_id", userID, "error", err)
		return nil, errors.Join(ErrNoFreePlan, err)
	}

	sub, err = s.provision(ctx, userID, free)
	if err == nil {
		s.log.InfoContext(ctx, "auto-provisioned free subscription",
			"user_id", userID, "subscription_id", sub.ID)
		return sub, nil
	}

	// Two first-time requests can race here; the partial unique index on
	// active rows lets exactly one insert win. Losing means the row now
	// exists, so read it.
	if errors.Is(err, ErrAlreadyActive) {
		return s.store.GetActiveByUser(ctx, userID)
	}
	return nil, err
}

// ChangePlan cancels the user's current subscription and starts a new
// one on the named plan with a fresh billing period. Old usage events
// stay attached to the canceled subscription and no longer count against
// the new period.
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, planName string) (*Subscription, error) {
	target, err := s.catalog.ByName(planName)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetActiveByUser(ctx, userID)
	switch {
	case err == nil:
		if err := s.store.Cancel(ctx, current.ID); err != nil {
			return nil, fmt.Errorf("cancel current subscription: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	sub, err := s.provision(ctx, userID, target)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "plan changed",
		"user_id", userID, "plan", target.Name, "subscription_id", sub.ID)
	return sub, nil
}

// Renew rolls an expired subscription onto a fresh 30-day period,
// keeping the plan and inserting a new billing period snapshot. Renewing
// a subscription whose period is still running is rejected.
func (s *Service) Renew(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !sub.PeriodExpired(now) {
		return nil, ErrNotExpired
	}

	p, err := s.catalog.ByName(sub.PlanName)
	if err != nil {
		return nil, err
	}

	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = now.Add(periodLength)
	sub.UpdatedAt = now

	period := s.newBillingPeriod(sub, p)
	if err := s.store.Renew(ctx, sub.ID, period); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription renewed",
		"user_id", userID, "subscription_id", sub.ID,
		"period_end", sub.CurrentPeriodEnd)
	return sub, nil
}

func (s *Service) provision(ctx context.Context, userID uuid.UUID, p plan.Plan) (*Subscription, error) {
	bc, err := s.directory.Resolve(ctx, userID)
	if err != nil {
		// Attribution only; a user without resolvable membership still
		// gets a subscription.
		s.log.WarnContext(ctx, "billing context resolution failed, provisioning without organization",
			"user_id", userID, "error", err)
		bc = billing.Context{UserID: userID}
	}

	now := s.now()
	sub := &Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		OrganizationID:     bc.OrganizationID,
		PlanID:             p.ID,
		PlanName:           p.Name,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(periodLength),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.Create(ctx, sub, s.newBillingPeriod(sub, p)); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) newBillingPeriod(sub *Subscription, p plan.Plan) *BillingPeriod {
	return &BillingPeriod{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		TokensUsed:     0,
		TokensLimit:    p.MonthlyTokenLimit,
		Status:         "open",
		CreatedAt:      s.now(),
	}
}
