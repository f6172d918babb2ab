package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds the Paddle credentials.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// Paddle implements BillingProvider over the official Paddle SDK.
type Paddle struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddle validates the config and constructs the SDK client.
func NewPaddle(cfg PaddleConfig) (*Paddle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: WebhookSecret is required", ErrInvalidConfig)
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, cfg.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return &Paddle{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// CreateCheckoutLink creates a Paddle transaction carrying our user ID
// in custom data, so the confirmation webhook can be attributed.
func (p *Paddle) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, fmt.Errorf("%w: PriceID is required", ErrInvalidRequest)
	}
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: UserID is required", ErrInvalidRequest)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": req.UserID.String(),
		},
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, errors.Join(ErrCheckoutFailed, err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return nil, fmt.Errorf("%w: no checkout URL returned", ErrCheckoutFailed)
	}

	return &CheckoutLink{
		URL:       *tx.Checkout.URL,
		SessionID: tx.ID,
		// Paddle hosted checkouts expire after 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// ParseWebhook verifies the Paddle-Signature header and normalizes the
// event.
func (p *Paddle) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("provider: build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var raw struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	event := &WebhookEvent{
		Type:          mapEventType(raw.EventType),
		ProviderEvent: raw.EventType,
		Raw:           raw.Data,
	}

	if id, ok := raw.Data["id"].(string); ok {
		event.SubscriptionID = id
	}
	if subID, ok := raw.Data["subscription_id"].(string); ok {
		event.SubscriptionID = subID
	}
	if status, ok := raw.Data["status"].(string); ok {
		event.Status = status
	}
	if customData, ok := raw.Data["custom_data"].(map[string]any); ok {
		if userID, ok := customData["user_id"].(string); ok {
			if parsed, err := uuid.Parse(userID); err == nil {
				event.UserID = parsed
			}
		}
	}
	event.PriceID = extractPriceID(raw.Data)

	return event, nil
}

// extractPriceID digs the first item's price ID out of the payload.
// Subscription events nest it under items[0].price.id, transaction
// events flatten it to items[0].price_id.
func extractPriceID(data map[string]any) string {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	if priceID, ok := item["price_id"].(string); ok {
		return priceID
	}
	if price, ok := item["price"].(map[string]any); ok {
		if priceID, ok := price["id"].(string); ok {
			return priceID
		}
	}
	return ""
}

func mapEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "subscription.created", "subscription.activated", "transaction.completed":
		return EventSubscriptionActivated
	case "subscription.canceled":
		return EventSubscriptionCanceled
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(paddleEvent)
	}
}
