package usage_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/usage"
)

type captureSink struct {
	mu     sync.Mutex
	events []*usage.Event
}

func (s *captureSink) Index(ctx context.Context, event *usage.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func TestRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stamps event with period bounds and attribution", func(t *testing.T) {
		t.Parallel()

		orgID, teamID := uuid.New(), uuid.New()
		f := newFixture(t, staticDirectory{orgID: &orgID, teamID: &teamID})
		userID := uuid.New()

		f.recorder.Record(ctx, userID, usage.Entry{
			Endpoint:    "/api/tickets/draft",
			TokensUsed:  1234,
			ModelUsed:   "gpt-4",
			FeatureUsed: "draft_ticket",
			RequestID:   "req-1",
		})

		events := f.events.Events()
		require.Len(t, events, 1)

		e := events[0]
		assert.EqualValues(t, 1234, e.TokensUsed)
		assert.Equal(t, "req-1", e.RequestID)
		require.NotNil(t, e.OrganizationID)
		assert.Equal(t, orgID, *e.OrganizationID)
		require.NotNil(t, e.TeamID)
		assert.Equal(t, teamID, *e.TeamID)

		sub, err := f.subs.GetActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, e.SubscriptionID)
		assert.Equal(t, sub.CurrentPeriodStart, e.BillingPeriodStart)
		assert.Equal(t, sub.CurrentPeriodEnd, e.BillingPeriodEnd)
	})

	t.Run("prefers billing context already on ctx", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, staticDirectory{})
		userID := uuid.New()
		orgID := uuid.New()

		ctx := billing.WithContext(ctx, billing.Context{UserID: userID, OrganizationID: &orgID})
		f.recorder.Record(ctx, userID, usage.Entry{Endpoint: "/api/tickets/draft", TokensUsed: 10})

		events := f.events.Events()
		require.Len(t, events, 1)
		require.NotNil(t, events[0].OrganizationID)
		assert.Equal(t, orgID, *events[0].OrganizationID)
	})

	t.Run("swallows resolver failure", func(t *testing.T) {
		t.Parallel()

		log := slog.New(slog.DiscardHandler)
		store := usage.NewMemoryStore()
		rec := usage.NewRecorder(store, failingResolver{err: errors.New("down")}, staticDirectory{}, log)

		// Must not panic or error; the event is simply lost.
		rec.Record(ctx, uuid.New(), usage.Entry{Endpoint: "/api/tickets/draft", TokensUsed: 5})
		assert.Empty(t, store.Events())
	})

	t.Run("drops negative token counts", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, staticDirectory{})

		f.recorder.Record(ctx, uuid.New(), usage.Entry{Endpoint: "/api/tickets/draft", TokensUsed: -1})
		assert.Empty(t, f.events.Events())
	})

	t.Run("drops entries without endpoint", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, staticDirectory{})

		f.recorder.Record(ctx, uuid.New(), usage.Entry{TokensUsed: 5})
		assert.Empty(t, f.events.Events())
	})

	t.Run("mirrors recorded events into the sink", func(t *testing.T) {
		t.Parallel()

		sink := &captureSink{}
		f := newFixture(t, staticDirectory{})

		log := slog.New(slog.DiscardHandler)
		rec := usage.NewRecorder(f.events, f.resolver, staticDirectory{}, log, usage.WithSink(sink))

		rec.Record(ctx, uuid.New(), usage.Entry{Endpoint: "/api/tickets/draft", TokensUsed: 7})
		require.Len(t, sink.events, 1)
		assert.EqualValues(t, 7, sink.events[0].TokensUsed)
	})
}
