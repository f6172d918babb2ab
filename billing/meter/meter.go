// Package meter ties the metering pipeline into one call: estimate the
// token cost, check it against the user's quota, run the operation, and
// record what it actually consumed. Handlers use Meter.Run instead of
// wiring the estimator, gate, and recorder by hand.
package meter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/usage"
	"github.com/ticketsmith/metering/pkg/estimator"
)

// failureTaxTokens is the flat charge recorded when a metered operation
// fails after passing the gate. The model call still cost something even
// though the user got no output.
const failureTaxTokens int64 = 50

// Operation describes the generation request being metered.
type Operation struct {
	Type      estimator.OperationType
	Endpoint  string
	Model     string
	Input     string
	RequestID string
}

// Result is the outcome of a metered run: the gate's decision and the
// token count that was recorded against the user.
type Result struct {
	Decision   usage.Decision
	TokensUsed int64
}

// Meter orchestrates one metered operation end to end.
type Meter struct {
	estimator *estimator.Estimator
	gate      *usage.Gate
	recorder  *usage.Recorder
	metrics   *Metrics
	log       *slog.Logger
}

// Option configures a Meter.
type Option func(*Meter)

// WithMetrics attaches request counters.
func WithMetrics(m *Metrics) Option {
	return func(mt *Meter) { mt.metrics = m }
}

// New wires a Meter.
func New(est *estimator.Estimator, gate *usage.Gate, recorder *usage.Recorder, log *slog.Logger, opts ...Option) *Meter {
	if est == nil {
		panic("meter: estimator is required")
	}
	if gate == nil {
		panic("meter: gate is required")
	}
	if recorder == nil {
		panic("meter: recorder is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	m := &Meter{estimator: est, gate: gate, recorder: recorder, log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs fn under quota enforcement. The sequence is fixed:
// estimate the cost from the operation input, ask the gate, run fn,
// record the tokens fn reports. A denial returns ErrQuotaExceeded with
// the gate's decision in the Result; fn is never invoked. When fn
// fails, the flat failure tax is recorded instead of the estimate and
// the error is returned wrapped in ErrOperationFailed.
func (m *Meter) Run(ctx context.Context, userID uuid.UUID, op Operation, fn func(ctx context.Context) (int64, error)) (*Result, error) {
	estimate := m.estimator.Estimate(op.Type, op.Input, op.Model)

	decision := m.gate.Enforce(ctx, userID, estimate)
	if !decision.Allowed {
		m.metrics.denied()
		m.log.InfoContext(ctx, "metered operation denied",
			"user_id", userID, "operation", op.Type, "estimated_tokens", estimate)
		return &Result{Decision: decision}, ErrQuotaExceeded
	}
	m.metrics.allowed()

	tokens, err := fn(ctx)
	if err != nil {
		m.record(ctx, userID, op, failureTaxTokens)
		return &Result{Decision: decision, TokensUsed: failureTaxTokens},
			errors.Join(ErrOperationFailed, err)
	}

	tokens = max(tokens, 0)
	m.record(ctx, userID, op, tokens)
	return &Result{Decision: decision, TokensUsed: tokens}, nil
}

func (m *Meter) record(ctx context.Context, userID uuid.UUID, op Operation, tokens int64) {
	m.recorder.Record(ctx, userID, usage.Entry{
		Endpoint:    op.Endpoint,
		TokensUsed:  tokens,
		ModelUsed:   op.Model,
		FeatureUsed: string(op.Type),
		RequestID:   op.RequestID,
	})
	m.metrics.recorded(tokens)
}
