// Package billing exposes plan changes over HTTP: creating provider
// checkout sessions and ingesting the provider's confirmation webhooks.
// A paid plan only becomes active once the webhook confirms payment;
// free tiers switch immediately without touching the provider.
package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/plan"
	"github.com/ticketsmith/metering/billing/provider"
	"github.com/ticketsmith/metering/billing/subscription"
	"github.com/ticketsmith/metering/handler"
	"github.com/ticketsmith/metering/pkg/identity"
)

// maxWebhookBody caps webhook payload reads.
const maxWebhookBody = 1 << 20

// Module bundles the billing endpoints.
type Module struct {
	catalog  *plan.Catalog
	subs     *subscription.Service
	provider provider.BillingProvider
	log      *slog.Logger
}

// NewModule wires the billing API.
func NewModule(catalog *plan.Catalog, subs *subscription.Service, bp provider.BillingProvider, log *slog.Logger) *Module {
	if catalog == nil {
		panic("billing module: catalog is required")
	}
	if subs == nil {
		panic("billing module: subscription service is required")
	}
	if bp == nil {
		panic("billing module: billing provider is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Module{catalog: catalog, subs: subs, provider: bp, log: log}
}

// Router mounts the billing endpoints. The webhook route carries no
// caller identity; its authenticity comes from signature verification.
func (m *Module) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/checkout", handler.Wrap(
		handler.HandlerFunc[handler.Context, checkoutRequest](m.checkout),
		handler.WithBinders[handler.Context, checkoutRequest](handler.JSONBody()),
	))
	r.Post("/webhook", http.HandlerFunc(m.webhook))

	return r
}

type checkoutRequest struct {
	PlanName   string `json:"plan_name"`
	SuccessURL string `json:"success_url"`
}

type checkoutResponse struct {
	// Activated is true when the plan switch completed immediately,
	// with no checkout needed.
	Activated bool                   `json:"activated"`
	Plan      string                 `json:"plan,omitempty"`
	Checkout  *provider.CheckoutLink `json:"checkout,omitempty"`
}

func (m *Module) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}
	if req.PlanName == "" {
		return handler.JSONError(handler.BadRequest("plan_name is required"))
	}

	p, err := m.catalog.ByName(req.PlanName)
	if err != nil {
		return handler.JSONError(handler.NotFound("unknown plan"))
	}

	if p.Price.AmountCents == 0 || p.ProviderPriceID == "" {
		sub, err := m.subs.ChangePlan(ctx, caller.UserID, p.Name)
		if err != nil {
			m.log.ErrorContext(ctx, "free plan change failed",
				"user_id", caller.UserID, "plan", p.Name, "error", err)
			return handler.JSONError(err)
		}
		return handler.JSON(checkoutResponse{Activated: true, Plan: sub.PlanName})
	}

	link, err := m.provider.CreateCheckoutLink(ctx, provider.CheckoutRequest{
		PriceID:    p.ProviderPriceID,
		UserID:     caller.UserID,
		Email:      caller.Email,
		SuccessURL: req.SuccessURL,
	})
	if err != nil {
		m.log.ErrorContext(ctx, "checkout creation failed",
			"user_id", caller.UserID, "plan", p.Name, "error", err)
		return handler.JSONError(err)
	}
	return handler.JSON(checkoutResponse{Plan: p.Name, Checkout: link})
}

// webhook ingests provider events. Unrecognized event types are
// acknowledged so the provider stops retrying them.
func (m *Module) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	event, err := m.provider.ParseWebhook(r.Context(), payload, r.Header.Get("Paddle-Signature"))
	if err != nil {
		m.log.WarnContext(r.Context(), "webhook rejected", "error", err)
		http.Error(w, "invalid webhook", http.StatusBadRequest)
		return
	}

	if event.Type == provider.EventSubscriptionActivated {
		if err := m.activate(r, event); err != nil {
			m.log.ErrorContext(r.Context(), "webhook plan activation failed",
				"provider_event", event.ProviderEvent,
				"provider_subscription", event.SubscriptionID, "error", err)
			// 500 makes the provider redeliver; activation is retryable.
			http.Error(w, "activation failed", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Module) activate(r *http.Request, event *provider.WebhookEvent) error {
	if event.UserID == uuid.Nil {
		return errors.New("event carries no user attribution")
	}
	p, err := m.catalog.ByProviderPrice(event.PriceID)
	if err != nil {
		return err
	}
	_, err = m.subs.ChangePlan(r.Context(), event.UserID, p.Name)
	return err
}
