package alert

import (
	"context"
	"log/slog"
)

// SlogAlerter writes threshold crossings to the structured log. It is
// the default channel and the fallback when email is not configured.
type SlogAlerter struct {
	log *slog.Logger
}

// NewSlogAlerter returns a log-backed Alerter.
func NewSlogAlerter(log *slog.Logger) *SlogAlerter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &SlogAlerter{log: log}
}

func (a *SlogAlerter) Alert(ctx context.Context, notice Notice) error {
	a.log.WarnContext(ctx, "usage threshold crossed",
		"subscription_id", notice.Snapshot.SubscriptionID,
		"plan", notice.Snapshot.PlanName,
		"threshold_percent", notice.Threshold,
		"current_usage", notice.Snapshot.CurrentUsage,
		"limit", notice.Snapshot.Limit,
		"recipient", notice.Recipient,
	)
	return nil
}
