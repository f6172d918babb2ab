package usage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory event log for tests and local
// development. Aggregations scan the slice the same way the SQL store
// scans the table.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) SumInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.events {
		if e.SubscriptionID == subID && !e.CreatedAt.Before(start) && !e.CreatedAt.After(end) {
			total += e.TokensUsed
		}
	}
	return total, nil
}

func (s *MemoryStore) inScope(e Event, scope Scope) bool {
	if scope.UserID != nil {
		return e.UserID == *scope.UserID
	}
	return e.OrganizationID != nil && *e.OrganizationID == *scope.OrganizationID
}

func (s *MemoryStore) Recent(ctx context.Context, scope Scope, since time.Time, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if s.inScope(e, scope) && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DailyTotals(ctx context.Context, scope Scope, since time.Time) ([]DailyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]*DailyTotal)
	for _, e := range s.events {
		if !s.inScope(e, scope) || e.CreatedAt.Before(since) {
			continue
		}
		day := e.CreatedAt.UTC().Truncate(24 * time.Hour)
		t, ok := byDay[day]
		if !ok {
			t = &DailyTotal{Day: day}
			byDay[day] = t
		}
		t.Tokens += e.TokensUsed
		t.Events++
	}

	out := make([]DailyTotal, 0, len(byDay))
	for _, t := range byDay {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *MemoryStore) TotalsByFeature(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error) {
	return s.totalsBy(scope, since, func(e Event) string { return e.FeatureUsed })
}

func (s *MemoryStore) TotalsByModel(ctx context.Context, scope Scope, since time.Time) ([]DimensionTotal, error) {
	return s.totalsBy(scope, since, func(e Event) string { return e.ModelUsed })
}

func (s *MemoryStore) TotalsByTeam(ctx context.Context, orgID uuid.UUID, since time.Time) ([]DimensionTotal, error) {
	return s.totalsBy(OrgScope(orgID), since, func(e Event) string {
		if e.TeamID == nil {
			return ""
		}
		return e.TeamID.String()
	})
}

func (s *MemoryStore) totalsBy(scope Scope, since time.Time, key func(Event) string) ([]DimensionTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := make(map[string]*DimensionTotal)
	for _, e := range s.events {
		if !s.inScope(e, scope) || e.CreatedAt.Before(since) {
			continue
		}
		k := key(e)
		t, ok := byKey[k]
		if !ok {
			t = &DimensionTotal{Key: k}
			byKey[k] = t
		}
		t.Tokens += e.TokensUsed
		t.Events++
	}

	out := make([]DimensionTotal, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tokens > out[j].Tokens })
	return out, nil
}

func (s *MemoryStore) TopUsers(ctx context.Context, orgID uuid.UUID, since time.Time, n int) ([]UserTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[uuid.UUID]*UserTotal)
	for _, e := range s.events {
		if !s.inScope(e, OrgScope(orgID)) || e.CreatedAt.Before(since) {
			continue
		}
		t, ok := byUser[e.UserID]
		if !ok {
			t = &UserTotal{UserID: e.UserID}
			byUser[e.UserID] = t
		}
		t.Tokens += e.TokensUsed
		t.Events++
	}

	out := make([]UserTotal, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tokens > out[j].Tokens })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) EventsInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.SubscriptionID == subID && !e.CreatedAt.Before(start) && !e.CreatedAt.After(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events returns a copy of all appended events, oldest first. Test
// helper.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
