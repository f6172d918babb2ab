// Package analytics mirrors usage events into an OpenSearch index so
// product dashboards can slice consumption without touching the billing
// database. Indexing is best-effort: the event log in Postgres is the
// source of truth and a lost mirror document is never worth failing a
// request over.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/ticketsmith/metering/billing/usage"
)

const defaultIndex = "token-usage-events"

// Sink indexes usage events. It satisfies the recorder's sink interface.
type Sink struct {
	client *opensearch.Client
	index  string
	log    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithIndex overrides the target index name.
func WithIndex(index string) Option {
	return func(s *Sink) {
		if index != "" {
			s.index = index
		}
	}
}

// NewSink wires an OpenSearch-backed sink.
func NewSink(client *opensearch.Client, log *slog.Logger, opts ...Option) *Sink {
	if client == nil {
		panic("analytics: opensearch client is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Sink{client: client, index: defaultIndex, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index writes one event document keyed by the event ID, so redelivery
// overwrites instead of duplicating. Failures are logged and swallowed.
func (s *Sink) Index(ctx context.Context, event *usage.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.log.ErrorContext(ctx, "analytics indexing failed: marshal",
			"event_id", event.ID, "error", err)
		return
	}

	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: event.ID.String(),
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		s.log.ErrorContext(ctx, "analytics indexing failed",
			"event_id", event.ID, "index", s.index, "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.log.ErrorContext(ctx, "analytics indexing failed",
			"event_id", event.ID, "index", s.index,
			"error", fmt.Errorf("opensearch: %s", res.Status()))
	}
}
