package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsmith/metering/billing/plan"
)

func activePlan(name string, limit int64) plan.Plan {
	return plan.Plan{
		Name:              name,
		MonthlyTokenLimit: limit,
		Price:             plan.Money{AmountCents: 0, Currency: "USD"},
		IsActive:          true,
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		t.Parallel()

		c, err := plan.NewCatalog(ctx, plan.NewMemorySource(activePlan("Free", 10_000)))
		require.NoError(t, err)

		p, err := c.ByName("free")
		require.NoError(t, err)
		assert.Equal(t, "Free", p.Name)
		assert.False(t, p.IsUnlimited())
	})

	t.Run("free helper finds the auto-provision tier", func(t *testing.T) {
		t.Parallel()

		c, err := plan.NewCatalog(ctx, plan.NewMemorySource(
			activePlan("Free", 10_000),
			activePlan("Pro", plan.Unlimited),
		))
		require.NoError(t, err)

		p, err := c.Free()
		require.NoError(t, err)
		assert.EqualValues(t, 10_000, p.MonthlyTokenLimit)

		pro, err := c.ByName("Pro")
		require.NoError(t, err)
		assert.True(t, pro.IsUnlimited())
	})

	t.Run("retired plans are excluded", func(t *testing.T) {
		t.Parallel()

		retired := activePlan("Legacy", 5_000)
		retired.IsActive = false

		c, err := plan.NewCatalog(ctx, plan.NewMemorySource(activePlan("Free", 10_000), retired))
		require.NoError(t, err)

		_, err = c.ByName("Legacy")
		assert.ErrorIs(t, err, plan.ErrNotFound)
	})

	t.Run("validation failures", func(t *testing.T) {
		t.Parallel()

		_, err := plan.NewCatalog(ctx, plan.NewMemorySource(activePlan("", 100)))
		assert.ErrorIs(t, err, plan.ErrEmptyName)

		_, err = plan.NewCatalog(ctx, plan.NewMemorySource(activePlan("Busted", -5)))
		assert.ErrorIs(t, err, plan.ErrInvalidLimit)

		_, err = plan.NewCatalog(ctx, plan.NewMemorySource(
			activePlan("Free", 100),
			activePlan("free", 200),
		))
		assert.ErrorIs(t, err, plan.ErrDuplicateName)

		_, err = plan.NewCatalog(ctx, plan.NewMemorySource())
		assert.ErrorIs(t, err, plan.ErrNoActivePlans)
	})
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - name: Free
    monthly_token_limit: 10000
    price: {amount_cents: 0, currency: USD}
    is_active: true
  - name: Pro
    monthly_token_limit: -1
    price: {amount_cents: 2900, currency: USD}
    is_active: true
`), 0o600))

	c, err := plan.NewCatalog(context.Background(), plan.NewYAMLSource(path))
	require.NoError(t, err)

	free, err := c.Free()
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, free.MonthlyTokenLimit)
	assert.NotEqual(t, free.ID.String(), "00000000-0000-0000-0000-000000000000")

	pro, err := c.ByName("Pro")
	require.NoError(t, err)
	assert.True(t, pro.IsUnlimited())
	assert.EqualValues(t, 2900, pro.Price.AmountCents)
}
