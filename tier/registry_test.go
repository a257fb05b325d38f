package tier_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/validate"
	"github.com/spongetheory/marketplace/store/memory"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
)

type fixture struct {
	store    *memory.Store
	registry *tier.Registry
	product  uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	products := catalog.NewService(store)
	p, err := products.Create(context.Background(), catalog.ProductInput{Name: "Chat", LaunchURL: "https://chat.example.com"})
	require.NoError(t, err)
	return fixture{store: store, registry: tier.NewRegistry(store, products, store), product: p.ID}
}

func ptr[T any](v T) *T { return &v }

func freeInput() tier.Input {
	return tier.Input{
		Name:          "Free",
		Price:         tier.Money{Amount: 0, Currency: "usd"},
		BillingPeriod: tier.PeriodFree,
		Tokens:        100,
		IsFree:        true,
	}
}

func paidInput(ref string, products ...uuid.UUID) tier.Input {
	return tier.Input{
		Name:          "Pro",
		Price:         tier.Money{Amount: 1900, Currency: "usd"},
		BillingPeriod: tier.PeriodMonthly,
		Tokens:        tier.Unlimited,
		PriceRef:      &ref,
		ProductIDs:    products,
	}
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("free and paid tiers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		free, err := f.registry.Create(ctx, freeInput())
		require.NoError(t, err)
		assert.True(t, free.IsFree)
		assert.Empty(t, free.ProductIDs)

		pro, err := f.registry.Create(ctx, paidInput("price_pro", f.product, f.product))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.product}, pro.ProductIDs)

		got, err := f.registry.GetFree(ctx)
		require.NoError(t, err)
		assert.Equal(t, free.ID, got.ID)

		got, err = f.registry.GetByPriceRef(ctx, "price_pro")
		require.NoError(t, err)
		assert.Equal(t, pro.ID, got.ID)
	})

	t.Run("second free tier is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.registry.Create(ctx, freeInput())
		require.NoError(t, err)

		_, err = f.registry.Create(ctx, freeInput())
		assert.ErrorIs(t, err, tier.ErrFreeTierExists)
	})

	t.Run("duplicate price reference is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.registry.Create(ctx, paidInput("price_x"))
		require.NoError(t, err)

		_, err = f.registry.Create(ctx, paidInput("price_x"))
		assert.ErrorIs(t, err, tier.ErrPriceRefTaken)
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.registry.Create(ctx, paidInput("price_x", uuid.New()))
		assert.ErrorIs(t, err, tier.ErrInvalidReference)
	})

	t.Run("invariant violations carry field details", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		in := freeInput()
		in.Price.Amount = 500
		in.PriceRef = ptr("price_free")
		_, err := f.registry.Create(ctx, in)
		require.ErrorIs(t, err, tier.ErrInvalidTier)
		var fe validate.FieldErrors
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe, "price.amount")
		assert.Contains(t, fe, "external_price_ref")

		in = paidInput("")
		in.PriceRef = nil
		_, err = f.registry.Create(ctx, in)
		assert.ErrorIs(t, err, tier.ErrInvalidTier)

		in = paidInput("price_y")
		in.Tokens = -2
		_, err = f.registry.Create(ctx, in)
		assert.ErrorIs(t, err, tier.ErrInvalidTier)
	})

	t.Run("popular moves to the newest popular tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		a := paidInput("price_a")
		a.Popular = true
		first, err := f.registry.Create(ctx, a)
		require.NoError(t, err)

		b := paidInput("price_b")
		b.Popular = true
		second, err := f.registry.Create(ctx, b)
		require.NoError(t, err)

		first, err = f.registry.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, first.Popular)
		assert.True(t, second.Popular)
	})
}

func TestRegistry_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("partial patch", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		pro, err := f.registry.Create(ctx, paidInput("price_pro"))
		require.NoError(t, err)

		ids := []uuid.UUID{f.product}
		updated, err := f.registry.Update(ctx, pro.ID, tier.Patch{Tokens: ptr[int64](500), ProductIDs: &ids})
		require.NoError(t, err)
		assert.Equal(t, int64(500), updated.Tokens)
		assert.Equal(t, ids, updated.ProductIDs)
		assert.Equal(t, pro.Name, updated.Name)
	})

	t.Run("rejected patch leaves the tier unchanged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		pro, err := f.registry.Create(ctx, paidInput("price_pro"))
		require.NoError(t, err)

		_, err = f.registry.Update(ctx, pro.ID, tier.Patch{IsFree: ptr(true)})
		require.ErrorIs(t, err, tier.ErrInvalidTier)

		got, err := f.registry.Get(ctx, pro.ID)
		require.NoError(t, err)
		assert.Equal(t, pro, got)
	})

	t.Run("paid tier becomes the free tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		pro, err := f.registry.Create(ctx, paidInput("price_pro"))
		require.NoError(t, err)

		period := tier.PeriodFree
		updated, err := f.registry.Update(ctx, pro.ID, tier.Patch{
			IsFree:        ptr(true),
			Price:         &tier.Money{Amount: 0, Currency: "usd"},
			BillingPeriod: &period,
			ClearPriceRef: true,
		})
		require.NoError(t, err)
		assert.True(t, updated.IsFree)
		assert.Nil(t, updated.PriceRef)
	})

	t.Run("missing tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.registry.Update(ctx, uuid.New(), tier.Patch{Name: ptr("x")})
		assert.ErrorIs(t, err, tier.ErrTierNotFound)
	})
}

func TestRegistry_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	pro, err := f.registry.Create(ctx, paidInput("price_pro", f.product))
	require.NoError(t, err)

	subs := subscription.NewService(f.store, f.store, f.store, f.store)
	_, err = subs.SetActive(ctx, "user-1", pro.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.registry.Delete(ctx, pro.ID), tier.ErrTierInUse)

	_, err = subs.Deactivate(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.registry.Delete(ctx, pro.ID))

	_, err = f.registry.Get(ctx, pro.ID)
	assert.ErrorIs(t, err, tier.ErrTierNotFound)
	_, err = f.registry.GetByPriceRef(ctx, "price_pro")
	assert.ErrorIs(t, err, tier.ErrPriceRefNotMatched)

	// The reference is free for a new tier once the old one is gone.
	_, err = f.registry.Create(ctx, paidInput("price_pro"))
	assert.NoError(t, err)

}
