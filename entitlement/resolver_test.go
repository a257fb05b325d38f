package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/entitlement"
	"github.com/spongetheory/marketplace/store/memory"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

type mockSubscriptions struct {
	mock.Mock
}

func (m *mockSubscriptions) GetActive(ctx context.Context, userID string) (subscription.Subscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(subscription.Subscription), args.Error(1)
}

type stack struct {
	store    *memory.Store
	subs     *subscription.Service
	usage    *usage.Service
	resolver *entitlement.Resolver
	product  uuid.UUID
	tier     tier.Tier
}

func newStack(t *testing.T) stack {
	t.Helper()
	store := memory.New()
	product := uuid.New()
	ref := "price_pro"
	tr := tier.Tier{
		ID: uuid.New(), Name: "Pro", BillingPeriod: tier.PeriodMonthly,
		Tokens: 3, PriceRef: &ref, ProductIDs: []uuid.UUID{product},
	}
	require.NoError(t, store.CreateTier(context.Background(), tr))

	subs := subscription.NewService(store, store, store, store)
	usg := usage.NewService(store)
	registry := tier.NewRegistry(store, nil, store)
	return stack{
		store:    store,
		subs:     subs,
		usage:    usg,
		resolver: entitlement.NewResolver(subs, registry, usg, nil),
		product:  product,
		tier:     tr,
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active subscription", func(t *testing.T) {
		t.Parallel()
		s := newStack(t)
		_, err := s.subs.SetActive(ctx, "u1", s.tier.ID)
		require.NoError(t, err)
		_, err = s.usage.Increment(ctx, "u1")
		require.NoError(t, err)

		ent, err := s.resolver.Resolve(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, ent.Tier)
		assert.Equal(t, s.tier.ID, ent.Tier.ID)
		assert.Equal(t, []uuid.UUID{s.product}, ent.Products)
		assert.Equal(t, usage.Quota{Used: 1, Max: 3}, ent.Quota)
		assert.True(t, s.resolver.CanAccess(ctx, "u1", s.product))
		assert.False(t, s.resolver.CanAccess(ctx, "u1", uuid.New()))
	})

	t.Run("no subscription grants nothing", func(t *testing.T) {
		t.Parallel()
		s := newStack(t)

		ent, err := s.resolver.Resolve(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, ent.Tier)
		assert.Empty(t, ent.Products)
		assert.Equal(t, usage.Quota{}, ent.Quota)
		assert.False(t, s.resolver.CanAccess(ctx, "u1", s.product))
	})

	t.Run("cancelled subscription keeps usage but no allowance", func(t *testing.T) {
		t.Parallel()
		s := newStack(t)
		_, err := s.subs.SetActive(ctx, "u1", s.tier.ID)
		require.NoError(t, err)
		_, err = s.usage.Increment(ctx, "u1")
		require.NoError(t, err)
		_, err = s.subs.Deactivate(ctx, "u1")
		require.NoError(t, err)

		ent, err := s.resolver.Resolve(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, ent.Tier)
		assert.Equal(t, usage.Quota{Used: 1, Max: 0}, ent.Quota)
	})
}

func TestResolver_FailsClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStack(t)

	subs := &mockSubscriptions{}
	subs.On("GetActive", mock.Anything, "u1").Return(subscription.Subscription{}, errors.New("db down"))
	resolver := entitlement.NewResolver(subs, tier.NewRegistry(s.store, nil, s.store), s.usage, nil)

	_, err := resolver.Resolve(ctx, "u1")
	assert.Error(t, err)
	assert.False(t, resolver.CanAccess(ctx, "u1", s.product))
	subs.AssertExpectations(t)
}
