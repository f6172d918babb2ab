package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the production event log over token_usage_events.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore returns a Store/ReportStore backed by db.
func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Append(ctx context.Context, event *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO token_usage_events
			(id, user_id, organization_id, team_id, subscription_id,
			 endpoint, tokens_used, model_used, feature_used, request_id,
			 billing_period_start, billing_period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, event.UserID, event.OrganizationID, event.TeamID, event.SubscriptionID,
		event.Endpoint, event.TokensUsed, event.ModelUsed, event.FeatureUsed, event.RequestID,
		event.BillingPeriodStart, event.BillingPeriodEnd, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}

func (s *PgStore) SumInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_used), 0)
		FROM token_usage_events
		WHERE subscription_id = $1 AND created_at >= $2 AND created_at <= $3`,
		subID, start, end,
	).Scan(&total)
	return total, err
}

// scopeFilter renders the scope as a WHERE fragment using the next two
// placeholder positions. Exactly one of the scope fields is set; both
// empty would make a report unbounded, so that is rejected upstream.
func scopeFilter(scope Scope) (string, any) {
	if scope.UserID != nil {
		return "user_id = $1", *scope.UserID
	}
	return "organization_id = $1", *scope.OrganizationID
}

func (s *PgStore) Recent(ctx context.Context, scope Scope, since time.Time, limit int) ([]Event, error) {
	filter, arg := scopeFilter(scope)
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, organization_id, team_id, subscription_id,
		       endpoint, tokens_used, model_used, feature_used, request_id,
		       billing_period_start, billing_period_end, created_at
		FROM token_usage_events
		WHERE `+filter+` AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`,
		arg, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.UserID, &e.OrganizationID, &e.TeamID, &e.SubscriptionID,
			&e.Endpoint, &e.TokensUsed, &e.ModelUsed, &e.FeatureUsed, &e.RequestID,
			&e.BillingPeriodStart, &e.BillingPeriodEnd, &e.CreatedAt)
		return e, err
	})
}

func (s *PgStore) DailyTotals(ctx context.Context, scope Scope, since time.Time) ([]DailyTotal, error) {
	filter, arg := scopeFilter(scope)
	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		       SUM(tokens_used), COUNT(*)
		FROM token_usage_events
		WHERE `+filter+` AND created_at >= $2
		GROUP BY day
		ORDER BY day`,
		arg, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyTotal, error) {
		var d DailyTotal
		err := row.Scan(&d.Day, &d.Tokens, &d.Events)
		return d, err
	})
}

func (s *PgStore) TotalsByFeature(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error) {
	return s.totalsByColumn(ctx, scope, since, "feature_used")
}

func (s *PgStore) TotalsByModel(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error) {
	return s.totalsByColumn(ctx, scope, since, "model_used")
}

func (s *PgStore) totalsByColumn(ctx context.Context, scope Scope, since time.Time, column string) ([]DimensionTotal, error) {
	filter, arg := scopeFilter(scope)
	rows, err := s.db.Query(ctx, `
		SELECT `+column+`, SUM(tokens_used), COUNT(*)
		FROM token_usage_events
		WHERE `+filter+` AND created_at >= $2
		GROUP BY `+column+`
		ORDER BY SUM(tokens_used) DESC`,
		arg, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDimensionTotals(rows)
}

func (s *PgStore) TotalsByTeam(ctx context.Context, orgID uuid.UUID, since time.Time) ([]DimensionTotal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT COALESCE(team_id::text, ''), SUM(tokens_used), COUNT(*)
		FROM token_usage_events
		WHERE organization_id = $1 AND created_at >= $2
		GROUP BY team_id
		ORDER BY SUM(tokens_used) DESC`,
		orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDimensionTotals(rows)
}

func (s *PgStore) TopUsers(ctx context.Context, orgID uuid.UUID, since time.Time, n int) ([]UserTotal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, SUM(tokens_used), COUNT(*)
		FROM token_usage_events
		WHERE organization_id = $1 AND created_at >= $2
		GROUP BY user_id
		ORDER BY SUM(tokens_used) DESC
		LIMIT $3`,
		orgID, since, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserTotal, error) {
		var u UserTotal
		err := row.Scan(&u.UserID, &u.Tokens, &u.Events)
		return u, err
	})
}

func (s *PgStore) EventsInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, organization_id, team_id, subscription_id,
		       endpoint, tokens_used, model_used, feature_used, request_id,
		       billing_period_start, billing_period_end, created_at
		FROM token_usage_events
		WHERE subscription_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at`,
		subID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.UserID, &e.OrganizationID, &e.TeamID, &e.SubscriptionID,
			&e.Endpoint, &e.TokensUsed, &e.ModelUsed, &e.FeatureUsed, &e.RequestID,
			&e.BillingPeriodStart, &e.BillingPeriodEnd, &e.CreatedAt)
		return e, err
	})
}

func collectDimensionTotals(rows pgx.Rows) ([]DimensionTotal, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DimensionTotal, error) {
		var d DimensionTotal
		err := row.Scan(&d.Key, &d.Tokens, &d.Events)
		return d, err
	})
}
