package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsmith/metering/pkg/pg"
)

// PgStore is the production Store over user_subscriptions and
// billing_periods.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore returns a Store backed by db.
func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.organization_id, s.plan_id, p.name,
		       s.status, s.current_period_start, s.current_period_end,
		       s.created_at, s.updated_at
		FROM user_subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.user_id = $1 AND s.status = 'active'`,
		userID)

	var sub Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.OrganizationID, &sub.PlanID, &sub.PlanName,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *PgStore) Create(ctx context.Context, sub *Subscription, period *BillingPeriod) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_subscriptions
				(id, user_id, organization_id, plan_id, status,
				 current_period_start, current_period_end, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			sub.ID, sub.UserID, sub.OrganizationID, sub.PlanID, sub.Status,
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt)
		if err != nil {
			if pg.IsDuplicateKey(err) {
				return ErrAlreadyActive
			}
			return fmt.Errorf("insert subscription: %w", err)
		}

		if err := insertBillingPeriod(ctx, tx, period); err != nil {
			return err
		}
		return nil
	})
}

func (s *PgStore) Cancel(ctx context.Context, subID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'canceled', updated_at = now()
		WHERE id = $1 AND status = 'active'`,
		subID)
	return err
}

func (s *PgStore) Renew(ctx context.Context, subID uuid.UUID, period *BillingPeriod) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_subscriptions
			SET current_period_start = $2, current_period_end = $3, updated_at = now()
			WHERE id = $1 AND status = 'active'`,
			subID, period.PeriodStart, period.PeriodEnd)
		if err != nil {
			return fmt.Errorf("update subscription period: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertBillingPeriod(ctx, tx, period)
	})
}

func (s *PgStore) LatestPeriod(ctx context.Context, subID uuid.UUID) (*BillingPeriod, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, subscription_id, period_start, period_end,
		       tokens_used, tokens_limit, overage_tokens, amount_charged_cents, status, created_at
		FROM billing_periods
		WHERE subscription_id = $1
		ORDER BY period_start DESC
		LIMIT 1`,
		subID)

	var p BillingPeriod
	err := row.Scan(&p.ID, &p.SubscriptionID, &p.PeriodStart, &p.PeriodEnd,
		&p.TokensUsed, &p.TokensLimit, &p.OverageTokens,
		&p.AmountChargedCents, &p.Status, &p.CreatedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func insertBillingPeriod(ctx context.Context, tx pgx.Tx, period *BillingPeriod) error {
	if period == nil {
		return errors.New("subscription: billing period is required")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO billing_periods
			(id, subscription_id, period_start, period_end,
			 tokens_used, tokens_limit, overage_tokens, amount_charged_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		period.ID, period.SubscriptionID, period.PeriodStart, period.PeriodEnd,
		period.TokensUsed, period.TokensLimit, period.OverageTokens,
		period.AmountChargedCents, period.Status, period.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert billing period: %w", err)
	}
	return nil
}
