package analytics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing/analytics"
	"github.com/ticketsmith/metering/billing/usage"
)

type capturedRequest struct {
	path string
	body []byte
}

func newTestCluster(t *testing.T, status int) (*opensearch.Client, *[]capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{path: r.URL.Path, body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, &captured
}

func TestIndex(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.DiscardHandler)

	t.Run("writes the event document keyed by event id", func(t *testing.T) {
		t.Parallel()

		client, captured := newTestCluster(t, http.StatusCreated)
		sink := analytics.NewSink(client, log)

		event := &usage.Event{
			ID:          uuid.New(),
			UserID:      uuid.New(),
			Endpoint:    "/api/tickets/draft",
			TokensUsed:  1200,
			FeatureUsed: "draft_ticket",
			CreatedAt:   time.Now().UTC(),
		}
		sink.Index(context.Background(), event)

		require.Len(t, *captured, 1)
		got := (*captured)[0]
		assert.Equal(t, "/token-usage-events/_doc/"+event.ID.String(), got.path)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(got.body, &doc))
		assert.Equal(t, "draft_ticket", doc["feature_used"])
		assert.EqualValues(t, 1200, doc["tokens_used"])
	})

	t.Run("custom index name", func(t *testing.T) {
		t.Parallel()

		client, captured := newTestCluster(t, http.StatusCreated)
		sink := analytics.NewSink(client, log, analytics.WithIndex("usage-staging"))

		sink.Index(context.Background(), &usage.Event{ID: uuid.New()})
		require.Len(t, *captured, 1)
		assert.Contains(t, (*captured)[0].path, "/usage-staging/_doc/")
	})

	t.Run("swallows cluster errors", func(t *testing.T) {
		t.Parallel()

		client, _ := newTestCluster(t, http.StatusInternalServerError)
		sink := analytics.NewSink(client, log)

		// Must not panic; the event is already durable in Postgres.
		sink.Index(context.Background(), &usage.Event{ID: uuid.New()})
	})
}
