// The metering server: it owns the token usage ledger and serves the
// usage and billing APIs for the ticket-drafting product.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketsmith/metering/billing"
	"github.com/ticketsmith/metering/billing/alert"
	"github.com/ticketsmith/metering/billing/analytics"
	"github.com/ticketsmith/metering/billing/meter"
	"github.com/ticketsmith/metering/billing/plan"
	"github.com/ticketsmith/metering/billing/provider"
	"github.com/ticketsmith/metering/billing/subscription"
	"github.com/ticketsmith/metering/billing/usage"
	billingmodule "github.com/ticketsmith/metering/modules/billing"
	usagemodule "github.com/ticketsmith/metering/modules/usage"
	"github.com/ticketsmith/metering/pkg/config"
	"github.com/ticketsmith/metering/pkg/estimator"
	"github.com/ticketsmith/metering/pkg/httpserver"
	"github.com/ticketsmith/metering/pkg/identity"
	"github.com/ticketsmith/metering/pkg/logger"
	"github.com/ticketsmith/metering/pkg/opensearch"
	"github.com/ticketsmith/metering/pkg/pg"
	"github.com/ticketsmith/metering/pkg/ratelimit"
	"github.com/ticketsmith/metering/pkg/redis"
)

type appConfig struct {
	Log    logger.Config
	HTTP   httpserver.Config
	Pg     pg.Config
	Redis  redis.Config
	Paddle provider.PaddleConfig

	// PlanCatalogFile switches the catalog to a YAML file, used in
	// development; production reads subscription_plans.
	PlanCatalogFile string `env:"PLAN_CATALOG_FILE"`

	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	AnalyticsEnabled   bool `env:"ANALYTICS_ENABLED" envDefault:"false"`
	EmailAlertsEnabled bool `env:"EMAIL_ALERTS_ENABLED" envDefault:"false"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithService("metering"))

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Pg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.Pg, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var planSource plan.Source = plan.NewPgSource(pool)
	if cfg.PlanCatalogFile != "" {
		planSource = plan.NewYAMLSource(cfg.PlanCatalogFile)
	}
	catalog, err := plan.NewCatalog(ctx, planSource)
	if err != nil {
		return err
	}

	directory := billing.NewPgDirectory(pool)
	subs := subscription.NewService(subscription.NewPgStore(pool), catalog, directory, log)

	metrics := meter.NewMetrics(prometheus.DefaultRegisterer)
	events := meter.InstrumentStore(usage.NewPgStore(pool), metrics)

	recorderOpts := []usage.RecorderOption{}
	if cfg.AnalyticsEnabled {
		var osCfg opensearch.Config
		config.MustLoad(&osCfg)
		osClient, err := opensearch.Connect(ctx, osCfg)
		if err != nil {
			return err
		}
		recorderOpts = append(recorderOpts, usage.WithSink(analytics.NewSink(osClient, log)))
	}

	recorder := usage.NewRecorder(events, subs, directory, log, recorderOpts...)
	evaluator := usage.NewEvaluator(events, subs, catalog, log)
	reports := usage.NewReports(usage.NewPgStore(pool))
	gate := usage.NewGate(evaluator, log)

	alerters := []alert.Alerter{alert.NewSlogAlerter(log)}
	if cfg.EmailAlertsEnabled {
		var mailCfg alert.Config
		config.MustLoad(&mailCfg)
		mailer, err := alert.NewPostmarkAlerter(mailCfg)
		if err != nil {
			return err
		}
		alerters = append(alerters, mailer)
	}
	notifier := alert.NewNotifier(log, alerters...)

	paddle, err := provider.NewPaddle(cfg.Paddle)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(ratelimit.NewRedisStore(rdb, "metering"), cfg.RateLimit, cfg.RateLimitWindow)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(identity.Middleware)
	r.Use(ratelimit.Middleware(limiter, func(req *http.Request) string {
		if caller, ok := identity.FromContext(req.Context()); ok {
			return caller.UserID.String()
		}
		return req.RemoteAddr
	}))

	r.Mount("/usage", usagemodule.NewModule(evaluator, reports, recorder, gate, estimator.New(), log, usagemodule.WithNotifier(notifier)).Router())
	r.Mount("/billing", billingmodule.NewModule(catalog, subs, paddle, log).Router())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(pg.Healthcheck(pool), redis.Healthcheck(rdb)))

	return httpserver.New(cfg.HTTP, log).Run(ctx, r)
}

func healthz(probes ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, probe := range probes {
			if err := probe(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
