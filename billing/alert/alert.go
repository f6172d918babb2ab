// Package alert watches limit snapshots and notifies users as they
// approach or hit their monthly token quota. Thresholds fire once per
// subscription and threshold; the dedup set is process-local, so a
// restart may re-send at most one alert per user, which is acceptable
// for a courtesy notification.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/usage"
)

// thresholds are checked in order; each fires independently.
var thresholds = [...]int{80, 100}

// Notice is one threshold crossing delivered to alerters.
type Notice struct {
	Threshold int
	Recipient string
	Snapshot  usage.Snapshot
}

// Alerter delivers a threshold notice over one channel.
type Alerter interface {
	Alert(ctx context.Context, notice Notice) error
}

// Notifier evaluates snapshots against the alert thresholds and fans
// crossings out to its alerters. Delivery failures are logged and
// swallowed; alerting never blocks the request path.
type Notifier struct {
	alerters []Alerter
	log      *slog.Logger

	mu    sync.Mutex
	fired map[string]struct{}
}

// NewNotifier wires a Notifier over the given delivery channels.
func NewNotifier(log *slog.Logger, alerters ...Alerter) *Notifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		alerters: alerters,
		log:      log,
		fired:    make(map[string]struct{}),
	}
}

// Check fires an alert for every threshold the snapshot has crossed that
// has not already fired for its subscription. Unlimited plans never
// alert.
func (n *Notifier) Check(ctx context.Context, snap *usage.Snapshot, recipient string) {
	if snap == nil || snap.Unlimited() {
		return
	}

	for _, threshold := range thresholds {
		if snap.PercentUsed < threshold {
			continue
		}
		if !n.claim(snap.SubscriptionID, threshold) {
			continue
		}

		notice := Notice{Threshold: threshold, Recipient: recipient, Snapshot: *snap}
		for _, a := range n.alerters {
			if err := a.Alert(ctx, notice); err != nil {
				n.log.ErrorContext(ctx, "usage alert delivery failed",
					"subscription_id", snap.SubscriptionID,
					"threshold", threshold, "error", err)
			}
		}
	}
}

// claim marks a subscription+threshold pair as fired and reports
// whether this call was the first to do so.
func (n *Notifier) claim(subID uuid.UUID, threshold int) bool {
	key := fmt.Sprintf("%s:%d", subID, threshold)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.fired[key]; ok {
		return false
	}
	n.fired[key] = struct{}{}
	return true
}

// Reset clears the fired set for a subscription, called when its
// billing period renews so the next period alerts again.
func (n *Notifier) Reset(subID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, threshold := range thresholds {
		delete(n.fired, fmt.Sprintf("%s:%d", subID, threshold))
	}
}
