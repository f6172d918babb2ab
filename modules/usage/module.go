// Package usage exposes the metering read API: the caller's current
// limit standing, their usage history, and organization-wide rollups
// for admins.
package usage

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/alert"
	"github.com/ticketsmith/metering/billing/usage"
	"github.com/ticketsmith/metering/handler"
	"github.com/ticketsmith/metering/pkg/estimator"
	"github.com/ticketsmith/metering/pkg/identity"
)

// Module bundles the usage endpoints and their dependencies.
type Module struct {
	evaluator *usage.Evaluator
	reports   *usage.Reports
	recorder  *usage.Recorder
	gate      *usage.Gate
	estimator *estimator.Estimator
	notifier  *alert.Notifier
	log       *slog.Logger
}

// Option configures a Module.
type Option func(*Module)

// WithNotifier checks alert thresholds whenever a snapshot is served.
func WithNotifier(n *alert.Notifier) Option {
	return func(m *Module) { m.notifier = n }
}

// NewModule wires the usage API.
func NewModule(evaluator *usage.Evaluator, reports *usage.Reports, recorder *usage.Recorder, gate *usage.Gate, est *estimator.Estimator, log *slog.Logger, opts ...Option) *Module {
	if evaluator == nil {
		panic("usage module: evaluator is required")
	}
	if reports == nil {
		panic("usage module: reports is required")
	}
	if recorder == nil {
		panic("usage module: recorder is required")
	}
	if gate == nil {
		panic("usage module: gate is required")
	}
	if est == nil {
		panic("usage module: estimator is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	m := &Module{
		evaluator: evaluator,
		reports:   reports,
		recorder:  recorder,
		gate:      gate,
		estimator: est,
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router mounts the usage endpoints. The read endpoints serve the
// dashboard; /check and /record are the pre-flight and post-flight
// halves of the metering contract used by the drafting workers.
func (m *Module) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/current", handler.Wrap(
		handler.HandlerFunc[handler.Context, struct{}](m.current),
	))
	r.Get("/history", handler.Wrap(
		handler.HandlerFunc[handler.Context, historyRequest](m.history),
		handler.WithBinders[handler.Context, historyRequest](handler.Query()),
	))
	r.Get("/organization/{orgID}", handler.Wrap(
		handler.HandlerFunc[handler.Context, orgRequest](m.organization),
		handler.WithBinders[handler.Context, orgRequest](handler.Query(), handler.Path()),
	))
	r.Post("/check", handler.Wrap(
		handler.HandlerFunc[handler.Context, checkRequest](m.check),
		handler.WithBinders[handler.Context, checkRequest](handler.JSONBody()),
	))
	r.Post("/record", handler.Wrap(
		handler.HandlerFunc[handler.Context, usage.Entry](m.record),
		handler.WithBinders[handler.Context, usage.Entry](handler.JSONBody()),
	))

	return r
}

// currentResponse is the /current payload: the limit snapshot plus the
// derived fields dashboards need to render a quota bar.
type currentResponse struct {
	usage.Snapshot
	Remaining int64 `json:"remaining"`
	Unlimited bool  `json:"unlimited"`
}

func (m *Module) current(ctx handler.Context, _ struct{}) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}

	snap, err := m.evaluator.Evaluate(ctx, caller.UserID)
	if err != nil {
		m.log.ErrorContext(ctx, "usage snapshot failed", "user_id", caller.UserID, "error", err)
		return handler.JSONError(err)
	}

	if m.notifier != nil {
		m.notifier.Check(ctx, snap, caller.Email)
	}

	return handler.JSON(currentResponse{
		Snapshot:  *snap,
		Remaining: snap.Remaining(),
		Unlimited: snap.Unlimited(),
	})
}

type historyRequest struct {
	Days  int `query:"days"`
	Limit int `query:"limit"`
}

func (m *Module) history(ctx handler.Context, req historyRequest) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}

	history, err := m.reports.UserHistory(ctx, caller.UserID, req.Days, req.Limit)
	if err != nil {
		m.log.ErrorContext(ctx, "usage history failed", "user_id", caller.UserID, "error", err)
		return handler.JSONError(err)
	}
	return handler.JSON(history)
}

type orgRequest struct {
	OrgID uuid.UUID `path:"orgID"`
	Days  int       `query:"days"`
}

func (m *Module) organization(ctx handler.Context, req orgRequest) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}
	if !caller.HasRole(identity.RoleOrgAdmin) {
		return handler.JSONError(handler.Forbidden("organization admin role required"))
	}
	if req.OrgID == uuid.Nil {
		return handler.JSONError(handler.BadRequest("organization id is required"))
	}

	report, err := m.reports.Organization(ctx, req.OrgID, req.Days)
	if err != nil {
		m.log.ErrorContext(ctx, "organization report failed", "org_id", req.OrgID, "error", err)
		return handler.JSONError(err)
	}
	return handler.JSON(report)
}

type checkRequest struct {
	Operation string `json:"operation"`
	Text      string `json:"text"`
	Model     string `json:"model"`
}

// checkResponse is the pre-flight decision, always returned with 200;
// callers branch on the allowed flag.
type checkResponse struct {
	usage.Decision
	EstimatedTokens int64 `json:"estimated_tokens"`
}

func (m *Module) check(ctx handler.Context, req checkRequest) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}

	estimate := m.estimator.Estimate(estimator.OperationType(req.Operation), req.Text, req.Model)
	decision := m.gate.Enforce(ctx, caller.UserID, estimate)

	if m.notifier != nil && decision.Snapshot != nil {
		m.notifier.Check(ctx, decision.Snapshot, caller.Email)
	}

	return handler.JSON(checkResponse{Decision: decision, EstimatedTokens: estimate})
}

func (m *Module) record(ctx handler.Context, entry usage.Entry) handler.Response {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return handler.JSONError(handler.Unauthorized("authentication required"))
	}

	// Recording is fire-and-forget; malformed entries are dropped and
	// logged inside the recorder.
	m.recorder.Record(ctx, caller.UserID, entry)
	return handler.EmptyWithStatus(http.StatusAccepted)
}
