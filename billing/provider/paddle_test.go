package provider_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing/provider"
)

const webhookSecret = "pdl_ntfset_test_secret"

// sign produces a Paddle-Signature header value for the payload:
// ts=<unix>;h1=hex(hmac-sha256(secret, "<ts>:<payload>")).
func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d:%s", ts, payload)
	return fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newPaddle(t *testing.T) *provider.Paddle {
	t.Helper()
	p, err := provider.NewPaddle(provider.PaddleConfig{
		APIKey:        "pdl_live_apikey_test",
		WebhookSecret: webhookSecret,
		Environment:   "sandbox",
	})
	require.NoError(t, err)
	return p
}

func TestNewPaddle(t *testing.T) {
	t.Parallel()

	_, err := provider.NewPaddle(provider.PaddleConfig{WebhookSecret: "s"})
	require.ErrorIs(t, err, provider.ErrInvalidConfig)

	_, err = provider.NewPaddle(provider.PaddleConfig{APIKey: "k"})
	require.ErrorIs(t, err, provider.ErrInvalidConfig)

	_, err = provider.NewPaddle(provider.PaddleConfig{APIKey: "k", WebhookSecret: "s", Environment: "staging"})
	require.ErrorIs(t, err, provider.ErrInvalidConfig)
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	userID := uuid.New()

	payload := fmt.Appendf(nil, `{
		"event_id": "evt_01",
		"event_type": "subscription.activated",
		"data": {
			"id": "sub_paddle_123",
			"status": "active",
			"custom_data": {"user_id": %q},
			"items": [{"price": {"id": "pri_pro_monthly"}}]
		}
	}`, userID)

	t.Run("verifies and normalizes a subscription event", func(t *testing.T) {
		t.Parallel()

		p := newPaddle(t)
		event, err := p.ParseWebhook(ctx, payload, sign(payload))
		require.NoError(t, err)

		assert.Equal(t, provider.EventSubscriptionActivated, event.Type)
		assert.Equal(t, "subscription.activated", event.ProviderEvent)
		assert.Equal(t, "sub_paddle_123", event.SubscriptionID)
		assert.Equal(t, userID, event.UserID)
		assert.Equal(t, "active", event.Status)
		assert.Equal(t, "pri_pro_monthly", event.PriceID)
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		t.Parallel()

		p := newPaddle(t)
		tampered := append([]byte(nil), payload...)
		tampered[len(tampered)-2] = ' '

		_, err := p.ParseWebhook(ctx, tampered, sign(payload))
		require.ErrorIs(t, err, provider.ErrInvalidSignature)
	})

	t.Run("transaction events carry the flattened price id", func(t *testing.T) {
		t.Parallel()

		txPayload := fmt.Appendf(nil, `{
			"event_type": "transaction.completed",
			"data": {
				"id": "txn_01",
				"subscription_id": "sub_paddle_456",
				"status": "completed",
				"custom_data": {"user_id": %q},
				"items": [{"price_id": "pri_team_monthly"}]
			}
		}`, userID)

		p := newPaddle(t)
		event, err := p.ParseWebhook(ctx, txPayload, sign(txPayload))
		require.NoError(t, err)

		assert.Equal(t, provider.EventSubscriptionActivated, event.Type)
		assert.Equal(t, "sub_paddle_456", event.SubscriptionID)
		assert.Equal(t, "pri_team_monthly", event.PriceID)
	})
}
