package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	defaultReportDays  = 30
	maxReportDays      = 365
	defaultHistoryRows = 50
	maxHistoryRows     = 500
	topUserCount       = 10
)

// Reports computes the read-side rollups consumed by dashboards. All
// numbers come from scanning events in the window; the grouping
// semantics are fixed even if a future implementation materializes
// them.
type Reports struct {
	store ReportStore
	now   func() time.Time
}

// NewReports wires a Reports service.
func NewReports(store ReportStore) *Reports {
	if store == nil {
		panic("usage: ReportStore is required")
	}
	return &Reports{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// History bundles recent events with every per-dimension rollup for one
// scope, the payload behind GET /usage/history.
type History struct {
	Events    []Event          `json:"events"`
	Daily     []DailyTotal     `json:"daily"`
	ByFeature []DimensionTotal `json:"by_feature"`
	ByModel   []DimensionTotal `json:"by_model"`
	Window    int              `json:"window_days"`
}

// OrgReport is the organization-wide view for admins: team breakdown
// and heaviest users on top of the shared rollups.
type OrgReport struct {
	Daily     []DailyTotal     `json:"daily"`
	ByFeature []DimensionTotal `json:"by_feature"`
	ByModel   []DimensionTotal `json:"by_model"`
	ByTeam    []DimensionTotal `json:"by_team"`
	TopUsers  []UserTotal      `json:"top_users"`
	Window    int              `json:"window_days"`
}

// UserHistory returns a user's recent events and rollups for the last
// days days. Out-of-range inputs clamp to defaults instead of erroring;
// these are dashboard queries.
func (r *Reports) UserHistory(ctx context.Context, userID uuid.UUID, days, limit int) (*History, error) {
	days = clamp(days, 1, maxReportDays, defaultReportDays)
	limit = clamp(limit, 1, maxHistoryRows, defaultHistoryRows)

	scope := UserScope(userID)
	since := r.now().AddDate(0, 0, -days)

	events, err := r.store.Recent(ctx, scope, since, limit)
	if err != nil {
		return nil, err
	}
	daily, err := r.store.DailyTotals(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	byFeature, err := r.store.TotalsByFeature(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	byModel, err := r.store.TotalsByModel(ctx, scope, since)
	if err != nil {
		return nil, err
	}

	return &History{
		Events:    events,
		Daily:     daily,
		ByFeature: byFeature,
		ByModel:   byModel,
		Window:    days,
	}, nil
}

// Organization returns the org-wide rollups for the last days days.
func (r *Reports) Organization(ctx context.Context, orgID uuid.UUID, days int) (*OrgReport, error) {
	days = clamp(days, 1, maxReportDays, defaultReportDays)

	scope := OrgScope(orgID)
	since := r.now().AddDate(0, 0, -days)

	daily, err := r.store.DailyTotals(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	byFeature, err := r.store.TotalsByFeature(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	byModel, err := r.store.TotalsByModel(ctx, scope, since)
	if err != nil {
		return nil, err
	}
	byTeam, err := r.store.TotalsByTeam(ctx, orgID, since)
	if err != nil {
		return nil, err
	}
	topUsers, err := r.store.TopUsers(ctx, orgID, since, topUserCount)
	if err != nil {
		return nil, err
	}

	return &OrgReport{
		Daily:     daily,
		ByFeature: byFeature,
		ByModel:   byModel,
		ByTeam:    byTeam,
		TopUsers:  topUsers,
		Window:    days,
	}, nil
}

func clamp(v, lo, hi, def int) int {
	if v <= 0 {
		return def
	}
	return min(max(v, lo), hi)
}
