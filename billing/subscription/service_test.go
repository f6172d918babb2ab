package subscription_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/plan"
	"github.com/ticketsmith/metering/billing/subscription"
)

type staticDirectory struct {
	orgID  *uuid.UUID
	teamID *uuid.UUID
	err    error
}

func (d staticDirectory) Resolve(ctx context.Context, userID uuid.UUID) (billing.Context, error) {
	if d.err != nil {
		return billing.Context{}, d.err
	}
	return billing.Context{UserID: userID, OrganizationID: d.orgID, TeamID: d.teamID}, nil
}

func testCatalog(t *testing.T, plans ...plan.Plan) *plan.Catalog {
	t.Helper()
	c, err := plan.NewCatalog(context.Background(), plan.NewMemorySource(plans...))
	require.NoError(t, err)
	return c
}

func freePlan() plan.Plan {
	return plan.Plan{
		ID:                uuid.New(),
		Name:              "Free",
		MonthlyTokenLimit: 10_000,
		IsActive:          true,
	}
}

func proPlan() plan.Plan {
	return plan.Plan{
		ID:                uuid.New(),
		Name:              "Pro",
		MonthlyTokenLimit: plan.Unlimited,
		Price:             plan.Money{AmountCents: 2900, Currency: "USD"},
		IsActive:          true,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGetOrCreateActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("auto-provisions free subscription with billing period", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{}, discardLogger(),
			subscription.WithClock(func() time.Time { return now }))

		userID := uuid.New()
		sub, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, userID, sub.UserID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, "Free", sub.PlanName)
		assert.Equal(t, now, sub.CurrentPeriodStart)
		assert.Equal(t, now.Add(30*24*time.Hour), sub.CurrentPeriodEnd)

		periods := store.Periods()
		require.Len(t, periods, 1)
		assert.Equal(t, sub.ID, periods[0].SubscriptionID)
		assert.Zero(t, periods[0].TokensUsed)
		assert.EqualValues(t, 10_000, periods[0].TokensLimit)
	})

	t.Run("second call is a pure read", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{}, discardLogger())

		userID := uuid.New()
		first, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		second, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, store.Periods(), 1)
	})

	t.Run("missing free plan is a configuration error", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, proPlan()), staticDirectory{}, discardLogger())

		_, err := svc.GetOrCreateActive(ctx, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrNoFreePlan)
	})

	t.Run("organization attribution from directory", func(t *testing.T) {
		t.Parallel()

		orgID := uuid.New()
		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{orgID: &orgID}, discardLogger())

		sub, err := svc.GetOrCreateActive(ctx, uuid.New())
		require.NoError(t, err)
		require.NotNil(t, sub.OrganizationID)
		assert.Equal(t, orgID, *sub.OrganizationID)
	})

	t.Run("directory failure still provisions", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan()),
			staticDirectory{err: context.DeadlineExceeded}, discardLogger())

		sub, err := svc.GetOrCreateActive(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, sub.OrganizationID)
	})
}

func TestChangePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("cancels old row and opens fresh period", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan(), proPlan()), staticDirectory{}, discardLogger())

		userID := uuid.New()
		old, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		upgraded, err := svc.ChangePlan(ctx, userID, "Pro")
		require.NoError(t, err)
		assert.NotEqual(t, old.ID, upgraded.ID)
		assert.Equal(t, "Pro", upgraded.PlanName)

		// Exactly one active subscription remains.
		active, err := store.GetActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, upgraded.ID, active.ID)

		periods := store.Periods()
		require.Len(t, periods, 2)
		assert.Zero(t, periods[1].TokensUsed)
		assert.Equal(t, plan.Unlimited, periods[1].TokensLimit)
	})

	t.Run("unknown plan rejected", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{}, discardLogger())

		_, err := svc.ChangePlan(ctx, uuid.New(), "Enterprise")
		assert.ErrorIs(t, err, plan.ErrNotFound)
	})

	t.Run("works for users with no subscription yet", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan(), proPlan()), staticDirectory{}, discardLogger())

		sub, err := svc.ChangePlan(ctx, uuid.New(), "Pro")
		require.NoError(t, err)
		assert.Equal(t, "Pro", sub.PlanName)
	})
}

func TestRenew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rolls expired subscription onto a fresh period", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := start
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{}, discardLogger(),
			subscription.WithClock(func() time.Time { return clock }))

		userID := uuid.New()
		_, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		clock = start.Add(31 * 24 * time.Hour)
		renewed, err := svc.Renew(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, clock, renewed.CurrentPeriodStart)
		assert.Equal(t, clock.Add(30*24*time.Hour), renewed.CurrentPeriodEnd)
		assert.Len(t, store.Periods(), 2)
	})

	t.Run("rejects renewal of a running period", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		svc := subscription.NewService(store, testCatalog(t, freePlan()), staticDirectory{}, discardLogger())

		userID := uuid.New()
		_, err := svc.GetOrCreateActive(ctx, userID)
		require.NoError(t, err)

		_, err = svc.Renew(ctx, userID)
		assert.ErrorIs(t, err, subscription.ErrNotExpired)
	})
}
