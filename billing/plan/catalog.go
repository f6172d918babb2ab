package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Source loads the plan catalog from a backing store.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

// Catalog is a validated, read-only view of the plans available to the
// metering service. It is loaded once at startup; plan administration
// happens out of band, and a redeploy (or explicit Reload) picks up
// changes.
type Catalog struct {
	byName map[string]Plan
	source Source
}

// NewCatalog loads and validates plans from src.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	c := &Catalog{source: src}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog from the source, replacing the in-memory
// view only if the new catalog validates.
func (c *Catalog) Reload(ctx context.Context) error {
	plans, err := c.source.Load(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoad, err)
	}

	byName, err := index(plans)
	if err != nil {
		return err
	}
	c.byName = byName
	return nil
}

// ByName returns the active plan with the given name (case-insensitive).
func (c *Catalog) ByName(name string) (Plan, error) {
	p, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Free returns the auto-provision tier, or ErrNotFound when the
// deployment is missing one. Callers treat that as a configuration
// error, not a user error.
func (c *Catalog) Free() (Plan, error) {
	return c.ByName(FreePlanName)
}

// ByProviderPrice returns the active plan mapped to the payment
// provider's price identifier.
func (c *Catalog) ByProviderPrice(priceID string) (Plan, error) {
	if priceID != "" {
		for _, p := range c.byName {
			if p.ProviderPriceID == priceID {
				return p, nil
			}
		}
	}
	return Plan{}, fmt.Errorf("%w: provider price %q", ErrNotFound, priceID)
}

// All returns the active plans in the catalog.
func (c *Catalog) All() []Plan {
	plans := make([]Plan, 0, len(c.byName))
	for _, p := range c.byName {
		plans = append(plans, p)
	}
	return plans
}

func index(plans []Plan) (map[string]Plan, error) {
	byName := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if p.Name == "" {
			return nil, ErrEmptyName
		}
		if p.MonthlyTokenLimit < Unlimited {
			return nil, fmt.Errorf("%w: plan %q has limit %d", ErrInvalidLimit, p.Name, p.MonthlyTokenLimit)
		}
		if !p.IsActive {
			continue
		}
		key := strings.ToLower(p.Name)
		if _, exists := byName[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		byName[key] = p
	}
	if len(byName) == 0 {
		return nil, ErrNoActivePlans
	}
	return byName, nil
}
