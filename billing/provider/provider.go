// Package provider is the payment-provider boundary. Plan changes with
// a price go through a hosted checkout; the provider confirms them back
// over a signed webhook, which is the trigger for actually switching
// the subscription. Free tiers never touch the provider.
package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest asks for a hosted checkout session for one user and
// one plan price.
type CheckoutRequest struct {
	PriceID    string
	UserID     uuid.UUID
	Email      string
	SuccessURL string
}

// CheckoutLink is a hosted checkout session.
type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EventType is the normalized billing event type.
type EventType string

const (
	EventSubscriptionActivated EventType = "subscription_activated"
	EventSubscriptionCanceled  EventType = "subscription_canceled"
	EventPaymentFailed         EventType = "payment_failed"
)

// WebhookEvent is a verified, normalized provider webhook.
type WebhookEvent struct {
	Type          EventType
	ProviderEvent string
	// SubscriptionID is the provider's subscription identifier.
	SubscriptionID string
	// UserID is our user, carried through checkout custom data.
	UserID  uuid.UUID
	Status  string
	PriceID string
	Raw     map[string]any
}

// BillingProvider abstracts the payment vendor so the billing module
// never imports an SDK directly.
type BillingProvider interface {
	// CreateCheckoutLink creates a hosted checkout session.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// ParseWebhook verifies the signature and normalizes the payload.
	// Callers must treat a verification failure as a potential forgery.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
