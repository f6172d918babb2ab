package usage

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Decision is the structured result of a pre-flight quota check. The
// snapshot rides along on denials so callers can render "X% used" and
// an upgrade prompt without another query.
type Decision struct {
	Allowed  bool      `json:"allowed"`
	Snapshot *Snapshot `json:"usage,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Gate is the enforcement check invoked before an expensive operation.
// It is advisory: it reads current usage and decides, and the caller
// records actual usage afterward. Two concurrent requests can both
// pass before either records; this soft-quota window is accepted, the
// quota exists for cost visibility, not hard reservation.
type Gate struct {
	evaluator *Evaluator
	log       *slog.Logger
	printer   *message.Printer
}

// NewGate wires a Gate around an Evaluator.
func NewGate(evaluator *Evaluator, log *slog.Logger) *Gate {
	if evaluator == nil {
		panic("usage: Evaluator is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		evaluator: evaluator,
		log:       log,
		// English digit grouping ("10,000") for limit values quoted in
		// user-facing denial messages.
		printer: message.NewPrinter(language.English),
	}
}

// Enforce decides whether an operation estimated at estimatedTokens may
// proceed for the user. When usage cannot be verified the gate fails
// closed: a metering failure must not silently grant unlimited access.
func (g *Gate) Enforce(ctx context.Context, userID uuid.UUID, estimatedTokens int64) Decision {
	snap, err := g.evaluator.Evaluate(ctx, userID)
	if err != nil {
		g.log.ErrorContext(ctx, "enforcement denied: cannot evaluate usage",
			"user_id", userID, "error", err)
		return Decision{
			Allowed: false,
			Message: "unable to verify usage limits, please try again",
		}
	}

	if snap.Unlimited() {
		return Decision{Allowed: true, Snapshot: snap}
	}

	if snap.CurrentUsage+estimatedTokens > snap.Limit {
		return Decision{
			Allowed:  false,
			Snapshot: snap,
			Message: g.printer.Sprintf(
				"This request needs about %d tokens but only %d of your %d monthly tokens remain. Upgrade your plan or wait for the period to reset.",
				estimatedTokens, snap.Remaining(), snap.Limit),
		}
	}

	return Decision{Allowed: true, Snapshot: snap}
}
