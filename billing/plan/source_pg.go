package plan

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSource struct {
	db *pgxpool.Pool
}

// NewPgSource returns a Source reading the subscription_plans table,
// the authoritative catalog in production.
func NewPgSource(db *pgxpool.Pool) Source {
	return &pgSource{db: db}
}

func (s *pgSource) Load(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, monthly_token_limit, price_cents, currency,
		       COALESCE(provider_price_id, ''), is_active, created_at
		FROM subscription_plans
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Plan, error) {
		var p Plan
		err := row.Scan(&p.ID, &p.Name, &p.MonthlyTokenLimit, &p.Price.AmountCents, &p.Price.Currency,
			&p.ProviderPriceID, &p.IsActive, &p.CreatedAt)
		return p, err
	})
}
