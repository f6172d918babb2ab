package billing_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corebilling "github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/plan"
	"github.com/ticketsmith/metering/billing/provider"
	"github.com/ticketsmith/metering/billing/subscription"
	billingmodule "github.com/ticketsmith/metering/modules/billing"
	"github.com/ticketsmith/metering/pkg/identity"
)

type bareDirectory struct{}

func (bareDirectory) Resolve(ctx context.Context, userID uuid.UUID) (corebilling.Context, error) {
	return corebilling.Context{UserID: userID}, nil
}

// fakeProvider scripts checkout links and webhook parses.
type fakeProvider struct {
	checkouts []provider.CheckoutRequest
	link      *provider.CheckoutLink
	event     *provider.WebhookEvent
	parseErr  error
}

func (f *fakeProvider) CreateCheckoutLink(ctx context.Context, req provider.CheckoutRequest) (*provider.CheckoutLink, error) {
	f.checkouts = append(f.checkouts, req)
	return f.link, nil
}

func (f *fakeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*provider.WebhookEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

type testAPI struct {
	srv  http.Handler
	subs *subscription.Service
	fp   *fakeProvider
}

func newTestAPI(t *testing.T, fp *fakeProvider) *testAPI {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewMemorySource(
		plan.Plan{ID: uuid.New(), Name: "Free", MonthlyTokenLimit: 10_000, IsActive: true},
		plan.Plan{
			ID:                uuid.New(),
			Name:              "Pro",
			MonthlyTokenLimit: 500_000,
			Price:             plan.Money{AmountCents: 2900, Currency: "USD"},
			ProviderPriceID:   "pri_pro_monthly",
			IsActive:          true,
		},
	))
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	subs := subscription.NewService(subscription.NewMemoryStore(), catalog, bareDirectory{}, log)
	module := billingmodule.NewModule(catalog, subs, fp, log)

	return &testAPI{srv: identity.Middleware(module.Router()), subs: subs, fp: fp}
}

func (a *testAPI) post(t *testing.T, path, body string, as uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if as != uuid.Nil {
		req.Header.Set(identity.HeaderUserID, as.String())
		req.Header.Set(identity.HeaderEmail, "dev@example.com")
	}
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

func TestCheckout(t *testing.T) {
	t.Parallel()

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, &fakeProvider{})
		rec := api.post(t, "/checkout", `{"plan_name":"Pro"}`, uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("free plan activates immediately", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{}
		api := newTestAPI(t, fp)
		userID := uuid.New()

		rec := api.post(t, "/checkout", `{"plan_name":"Free"}`, userID)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Activated bool   `json:"activated"`
				Plan      string `json:"plan"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Data.Activated)
		assert.Equal(t, "Free", body.Data.Plan)
		assert.Empty(t, fp.checkouts, "free tier never touches the provider")
	})

	t.Run("paid plan returns a checkout link", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{link: &provider.CheckoutLink{
			URL:       "https://checkout.paddle.com/txn_01",
			SessionID: "txn_01",
			ExpiresAt: time.Now().Add(24 * time.Hour),
		}}
		api := newTestAPI(t, fp)
		userID := uuid.New()

		rec := api.post(t, "/checkout", `{"plan_name":"Pro","success_url":"https://app.ticketsmith.io/billing/done"}`, userID)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, fp.checkouts, 1)
		assert.Equal(t, "pri_pro_monthly", fp.checkouts[0].PriceID)
		assert.Equal(t, userID, fp.checkouts[0].UserID)
		assert.Equal(t, "https://app.ticketsmith.io/billing/done", fp.checkouts[0].SuccessURL)

		var body struct {
			Data struct {
				Activated bool `json:"activated"`
				Checkout  struct {
					URL string `json:"url"`
				} `json:"checkout"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Data.Activated)
		assert.Equal(t, "https://checkout.paddle.com/txn_01", body.Data.Checkout.URL)

		// Plan does not switch until the webhook confirms payment.
		sub, err := api.subs.GetOrCreateActive(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "Free", sub.PlanName)
	})

	t.Run("unknown plan is 404", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, &fakeProvider{})
		rec := api.post(t, "/checkout", `{"plan_name":"Enterprise"}`, uuid.New())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWebhook(t *testing.T) {
	t.Parallel()

	t.Run("activated event switches the plan", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		fp := &fakeProvider{event: &provider.WebhookEvent{
			Type:           provider.EventSubscriptionActivated,
			ProviderEvent:  "subscription.activated",
			SubscriptionID: "sub_paddle_123",
			UserID:         userID,
			Status:         "active",
			PriceID:        "pri_pro_monthly",
		}}
		api := newTestAPI(t, fp)

		rec := api.post(t, "/webhook", `{}`, uuid.Nil)
		require.Equal(t, http.StatusOK, rec.Code)

		sub, err := api.subs.GetOrCreateActive(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "Pro", sub.PlanName)
	})

	t.Run("invalid signature is rejected", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, &fakeProvider{parseErr: provider.ErrInvalidSignature})
		rec := api.post(t, "/webhook", `{}`, uuid.Nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown price fails so the provider redelivers", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{event: &provider.WebhookEvent{
			Type:    provider.EventSubscriptionActivated,
			UserID:  uuid.New(),
			PriceID: "pri_retired_plan",
		}}
		api := newTestAPI(t, fp)

		rec := api.post(t, "/webhook", `{}`, uuid.Nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("unrelated events are acknowledged", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{event: &provider.WebhookEvent{
			Type:          provider.EventPaymentFailed,
			ProviderEvent: "transaction.payment_failed",
		}}
		api := newTestAPI(t, fp)

		rec := api.post(t, "/webhook", `{}`, uuid.Nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
