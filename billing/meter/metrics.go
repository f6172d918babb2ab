package meter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ticketsmith/metering/billing/usage"
)

// Metrics holds the meter's prometheus counters. A nil *Metrics is
// valid and counts nothing, so tests and tools can skip registration.
type Metrics struct {
	requests          *prometheus.CounterVec
	tokensRecorded    prometheus.Counter
	recordingFailures prometheus.Counter
}

// NewMetrics registers the meter counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketsmith",
			Subsystem: "meter",
			Name:      "requests_total",
			Help:      "Metered operations by gate outcome.",
		}, []string{"result"}),
		tokensRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketsmith",
			Subsystem: "meter",
			Name:      "tokens_recorded_total",
			Help:      "Tokens written to the usage log.",
		}),
		recordingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketsmith",
			Subsystem: "meter",
			Name:      "recording_failures_total",
			Help:      "Usage events that could not be persisted.",
		}),
	}
}

func (m *Metrics) allowed() {
	if m != nil {
		m.requests.WithLabelValues("allowed").Inc()
	}
}

func (m *Metrics) denied() {
	if m != nil {
		m.requests.WithLabelValues("denied").Inc()
	}
}

func (m *Metrics) recorded(tokens int64) {
	if m != nil {
		m.tokensRecorded.Add(float64(tokens))
	}
}

// InstrumentStore wraps a usage store so failed appends increment the
// recording-failure counter. The Recorder swallows append errors, so
// this decorator is the only place they surface as a metric.
func InstrumentStore(store usage.Store, metrics *Metrics) usage.Store {
	return &instrumentedStore{store: store, metrics: metrics}
}

type instrumentedStore struct {
	store   usage.Store
	metrics *Metrics
}

func (s *instrumentedStore) Append(ctx context.Context, event *usage.Event) error {
	if err := s.store.Append(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.recordingFailures.Inc()
		}
		return err
	}
	return nil
}

func (s *instrumentedStore) SumInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) (int64, error) {
	return s.store.SumInPeriod(ctx, subID, start, end)
}
