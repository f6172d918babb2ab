package usage_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/plan"
	"github.com/ticketsmith/metering/billing/subscription"
	"github.com/ticketsmith/metering/billing/usage"
)

type staticDirectory struct {
	orgID  *uuid.UUID
	teamID *uuid.UUID
}

func (d staticDirectory) Resolve(ctx context.Context, userID uuid.UUID) (billing.Context, error) {
	return billing.Context{UserID: userID, OrganizationID: d.orgID, TeamID: d.teamID}, nil
}

// failingResolver simulates a broken subscription layer.
type failingResolver struct{ err error }

func (r failingResolver) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return nil, r.err
}

// fixture wires the metering core against in-memory stores.
type fixture struct {
	events    *usage.MemoryStore
	subs      *subscription.MemoryStore
	resolver  *subscription.Service
	recorder  *usage.Recorder
	evaluator *usage.Evaluator
	gate      *usage.Gate
}

func newFixture(t *testing.T, dir billing.Directory, plans ...plan.Plan) *fixture {
	t.Helper()

	if len(plans) == 0 {
		plans = []plan.Plan{{
			ID:                uuid.New(),
			Name:              "Free",
			MonthlyTokenLimit: 10_000,
			IsActive:          true,
		}}
	}

	catalog, err := plan.NewCatalog(context.Background(), plan.NewMemorySource(plans...))
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	subStore := subscription.NewMemoryStore()
	resolver := subscription.NewService(subStore, catalog, dir, log)
	events := usage.NewMemoryStore()
	evaluator := usage.NewEvaluator(events, resolver, catalog, log)

	return &fixture{
		events:    events,
		subs:      subStore,
		resolver:  resolver,
		recorder:  usage.NewRecorder(events, resolver, dir, log),
		evaluator: evaluator,
		gate:      usage.NewGate(evaluator, log),
	}
}

func (f *fixture) record(t *testing.T, userID uuid.UUID, tokens int64) {
	t.Helper()
	f.recorder.Record(context.Background(), userID, usage.Entry{
		Endpoint:    "/api/tickets/draft",
		TokensUsed:  tokens,
		ModelUsed:   "gpt-4",
		FeatureUsed: "draft_ticket",
	})
}

func unlimitedPlans() []plan.Plan {
	return []plan.Plan{
		{ID: uuid.New(), Name: "Free", MonthlyTokenLimit: 10_000, IsActive: true},
		{ID: uuid.New(), Name: "Pro", MonthlyTokenLimit: plan.Unlimited, IsActive: true},
	}
}
