package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing/usage"
)

func seedEvent(t *testing.T, store *usage.MemoryStore, e usage.Event) {
	t.Helper()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.SubscriptionID == uuid.Nil {
		e.SubscriptionID = uuid.New()
	}
	if e.Endpoint == "" {
		e.Endpoint = "/api/tickets/draft"
	}
	require.NoError(t, store.Append(context.Background(), &e))
}

func TestUserHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("rolls up a user's events by day, feature, and model", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		userID, other := uuid.New(), uuid.New()

		seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 1200, FeatureUsed: "draft_ticket", ModelUsed: "gpt-4", CreatedAt: now.Add(-1 * time.Hour)})
		seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 800, FeatureUsed: "refine_ticket", ModelUsed: "gpt-4", CreatedAt: now.Add(-2 * time.Hour)})
		seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 400, FeatureUsed: "draft_ticket", ModelUsed: "gpt-3.5-turbo", CreatedAt: now.AddDate(0, 0, -2)})
		seedEvent(t, store, usage.Event{UserID: other, TokensUsed: 9999, FeatureUsed: "draft_ticket", ModelUsed: "gpt-4", CreatedAt: now})

		reports := usage.NewReports(store)
		h, err := reports.UserHistory(ctx, userID, 30, 50)
		require.NoError(t, err)

		assert.Equal(t, 30, h.Window)
		require.Len(t, h.Events, 3)
		// Newest first.
		assert.EqualValues(t, 1200, h.Events[0].TokensUsed)

		var total int64
		for _, d := range h.Daily {
			total += d.Tokens
		}
		assert.EqualValues(t, 2400, total, "other users' events must not leak in")

		require.Len(t, h.ByFeature, 2)
		assert.Equal(t, "draft_ticket", h.ByFeature[0].Key)
		assert.EqualValues(t, 1600, h.ByFeature[0].Tokens)
		assert.EqualValues(t, 2, h.ByFeature[0].Events)

		require.Len(t, h.ByModel, 2)
		assert.Equal(t, "gpt-4", h.ByModel[0].Key)
		assert.EqualValues(t, 2000, h.ByModel[0].Tokens)
	})

	t.Run("window excludes older events", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		userID := uuid.New()

		seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 100, FeatureUsed: "draft_ticket", CreatedAt: now.AddDate(0, 0, -3)})
		seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 200, FeatureUsed: "draft_ticket", CreatedAt: now.AddDate(0, 0, -40)})

		reports := usage.NewReports(store)
		h, err := reports.UserHistory(ctx, userID, 7, 50)
		require.NoError(t, err)

		require.Len(t, h.Events, 1)
		assert.EqualValues(t, 100, h.Events[0].TokensUsed)
	})

	t.Run("clamps out-of-range days and limit", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		userID := uuid.New()
		for i := range 60 {
			seedEvent(t, store, usage.Event{UserID: userID, TokensUsed: 1, FeatureUsed: "draft_ticket", CreatedAt: now.Add(-time.Duration(i) * time.Minute)})
		}

		reports := usage.NewReports(store)

		h, err := reports.UserHistory(ctx, userID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 30, h.Window)
		assert.Len(t, h.Events, 50, "limit defaults to 50")

		h, err = reports.UserHistory(ctx, userID, 100_000, 100_000)
		require.NoError(t, err)
		assert.Equal(t, 365, h.Window)
		assert.Len(t, h.Events, 60, "cap above the event count returns all")
	})
}

func TestOrganization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()

	store := usage.NewMemoryStore()
	orgID, teamA, teamB := uuid.New(), uuid.New(), uuid.New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	seedEvent(t, store, usage.Event{UserID: alice, OrganizationID: &orgID, TeamID: &teamA, TokensUsed: 5000, FeatureUsed: "draft_ticket", ModelUsed: "gpt-4", CreatedAt: now.Add(-time.Hour)})
	seedEvent(t, store, usage.Event{UserID: bob, OrganizationID: &orgID, TeamID: &teamA, TokensUsed: 3000, FeatureUsed: "refine_ticket", ModelUsed: "gpt-4", CreatedAt: now.Add(-2 * time.Hour)})
	seedEvent(t, store, usage.Event{UserID: carol, OrganizationID: &orgID, TeamID: &teamB, TokensUsed: 7000, FeatureUsed: "summarize", ModelUsed: "gpt-3.5-turbo", CreatedAt: now.Add(-3 * time.Hour)})
	// No team attribution.
	seedEvent(t, store, usage.Event{UserID: alice, OrganizationID: &orgID, TokensUsed: 500, FeatureUsed: "draft_ticket", ModelUsed: "gpt-4", CreatedAt: now.Add(-4 * time.Hour)})
	// Different org, must not appear.
	otherOrg := uuid.New()
	seedEvent(t, store, usage.Event{UserID: uuid.New(), OrganizationID: &otherOrg, TokensUsed: 50_000, FeatureUsed: "draft_ticket", CreatedAt: now})

	reports := usage.NewReports(store)
	rep, err := reports.Organization(ctx, orgID, 30)
	require.NoError(t, err)

	var total int64
	for _, d := range rep.Daily {
		total += d.Tokens
	}
	assert.EqualValues(t, 15_500, total)

	require.Len(t, rep.ByTeam, 3)
	assert.Equal(t, teamA.String(), rep.ByTeam[0].Key)
	assert.EqualValues(t, 8000, rep.ByTeam[0].Tokens)
	assert.Equal(t, teamB.String(), rep.ByTeam[1].Key)
	assert.EqualValues(t, 7000, rep.ByTeam[1].Tokens)
	assert.Equal(t, "", rep.ByTeam[2].Key, "events without a team group under the empty key")

	require.Len(t, rep.TopUsers, 3)
	assert.Equal(t, carol, rep.TopUsers[0].UserID)
	assert.EqualValues(t, 7000, rep.TopUsers[0].Tokens)
	assert.Equal(t, alice, rep.TopUsers[1].UserID)
	assert.EqualValues(t, 5500, rep.TopUsers[1].Tokens)

	assert.Equal(t, "draft_ticket", rep.ByFeature[0].Key)
	assert.EqualValues(t, 5500, rep.ByFeature[0].Tokens)
}
