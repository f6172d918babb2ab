// One-shot export of a subscription's latest billing period to the
// usage archive bucket, for finance reconciliation. Intended to run
// from cron or by hand:
//
//	SUBSCRIPTION_ID=<uuid> go run ./cmd/export
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/export"
	"github.com/ticketsmith/metering/billing/subscription"
	"github.com/ticketsmith/metering/billing/usage"
	"github.com/ticketsmith/metering/pkg/config"
	"github.com/ticketsmith/metering/pkg/logger"
	"github.com/ticketsmith/metering/pkg/pg"
)

type exportConfig struct {
	Log    logger.Config
	Pg     pg.Config
	Export export.Config

	SubscriptionID uuid.UUID `env:"SUBSCRIPTION_ID,required"`
}

func main() {
	var cfg exportConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithService("metering-export"))

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("export failed", "subscription_id", cfg.SubscriptionID, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg exportConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Pg)
	if err != nil {
		return err
	}
	defer pool.Close()

	period, err := subscription.NewPgStore(pool).LatestPeriod(ctx, cfg.SubscriptionID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return errors.New("subscription has no billing periods")
		}
		return err
	}

	exporter, err := export.NewExporter(ctx, cfg.Export, usage.NewPgStore(pool))
	if err != nil {
		return err
	}

	key, err := exporter.ExportPeriod(ctx, cfg.SubscriptionID, *period)
	if err != nil {
		return err
	}

	log.Info("period exported",
		"subscription_id", cfg.SubscriptionID,
		"period_start", period.PeriodStart,
		"period_end", period.PeriodEnd,
		"key", key)
	return nil
}
