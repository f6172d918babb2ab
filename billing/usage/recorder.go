package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/subscription"
)

// SubscriptionResolver is the slice of the subscription service the
// metering core depends on.
type SubscriptionResolver interface {
	GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error)
}

// Sink receives a copy of every recorded event, best-effort. Used to
// mirror events into the analytics index.
type Sink interface {
	Index(ctx context.Context, event *Event)
}

// Recorder appends usage events. Recording is telemetry for an
// operation that already succeeded, so the Recorder never surfaces a
// failure to its caller: anything that goes wrong is logged and
// swallowed.
type Recorder struct {
	store     Store
	subs      SubscriptionResolver
	directory billing.Directory
	sink      Sink
	log       *slog.Logger
	now       func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSink mirrors recorded events into an analytics sink.
func WithSink(sink Sink) RecorderOption {
	return func(r *Recorder) { r.sink = sink }
}

// WithRecorderClock overrides the time source for tests.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder wires a Recorder.
func NewRecorder(store Store, subs SubscriptionResolver, directory billing.Directory, log *slog.Logger, opts ...RecorderOption) *Recorder {
	if store == nil {
		panic("usage: Store is required")
	}
	if subs == nil {
		panic("usage: SubscriptionResolver is required")
	}
	if directory == nil {
		panic("usage: billing directory is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := &Recorder{
		store:     store,
		subs:      subs,
		directory: directory,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one usage event for the user, stamped with their
// current billing period bounds. Organization and team attribution come
// from the billing context; a failed lookup degrades to a bare user
// event rather than dropping the record.
func (r *Recorder) Record(ctx context.Context, userID uuid.UUID, entry Entry) {
	if err := validateEntry(entry); err != nil {
		r.log.ErrorContext(ctx, "dropping invalid usage entry",
			"user_id", userID, "endpoint", entry.Endpoint, "error", err)
		return
	}

	sub, err := r.subs.GetOrCreateActive(ctx, userID)
	if err != nil {
		r.log.ErrorContext(ctx, "usage recording failed: cannot resolve subscription",
			"user_id", userID, "endpoint", entry.Endpoint, "error", err)
		return
	}

	bc, ok := billing.FromContext(ctx)
	if !ok || bc.UserID != userID {
		if bc, err = r.directory.Resolve(ctx, userID); err != nil {
			r.log.WarnContext(ctx, "usage attribution lookup failed, recording without org/team",
				"user_id", userID, "error", err)
			bc = billing.Context{UserID: userID}
		}
	}

	event := &Event{
		ID:                 uuid.New(),
		UserID:             userID,
		OrganizationID:     bc.OrganizationID,
		TeamID:             bc.TeamID,
		SubscriptionID:     sub.ID,
		Endpoint:           entry.Endpoint,
		TokensUsed:         entry.TokensUsed,
		ModelUsed:          entry.ModelUsed,
		FeatureUsed:        entry.FeatureUsed,
		RequestID:          entry.RequestID,
		BillingPeriodStart: sub.CurrentPeriodStart,
		BillingPeriodEnd:   sub.CurrentPeriodEnd,
		CreatedAt:          r.now(),
	}

	if err := r.store.Append(ctx, event); err != nil {
		r.log.ErrorContext(ctx, "usage recording failed: append",
			"user_id", userID, "endpoint", entry.Endpoint,
			"tokens", entry.TokensUsed, "error", err)
		return
	}

	if r.sink != nil {
		r.sink.Index(ctx, event)
	}
}

func validateEntry(entry Entry) error {
	if entry.TokensUsed < 0 {
		return ErrNegativeTokens
	}
	if entry.Endpoint == "" {
		return ErrEmptyEndpoint
	}
	return nil
}
