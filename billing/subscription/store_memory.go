package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// It enforces the same at-most-one-active-per-user invariant the
// database enforces with its partial unique index.
type MemoryStore struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*Subscription
	periods []*BillingPeriod
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == StatusActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription, period *BillingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.Status == StatusActive {
			return ErrAlreadyActive
		}
	}

	cp := *sub
	s.subs[sub.ID] = &cp
	pcp := *period
	s.periods = append(s.periods, &pcp)
	return nil
}

func (s *MemoryStore) Cancel(ctx context.Context, subID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[subID]; ok && sub.Status == StatusActive {
		sub.Status = StatusCanceled
	}
	return nil
}

func (s *MemoryStore) Renew(ctx context.Context, subID uuid.UUID, period *BillingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subID]
	if !ok || sub.Status != StatusActive {
		return ErrNotFound
	}
	sub.CurrentPeriodStart = period.PeriodStart
	sub.CurrentPeriodEnd = period.PeriodEnd

	pcp := *period
	s.periods = append(s.periods, &pcp)
	return nil
}

func (s *MemoryStore) LatestPeriod(ctx context.Context, subID uuid.UUID) (*BillingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *BillingPeriod
	for _, p := range s.periods {
		if p.SubscriptionID != subID {
			continue
		}
		if latest == nil || p.PeriodStart.After(latest.PeriodStart) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// Periods returns the billing period snapshots created so far, oldest
// first. Test helper.
func (s *MemoryStore) Periods() []BillingPeriod {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BillingPeriod, len(s.periods))
	for i, p := range s.periods {
		out[i] = *p
	}
	return out
}
