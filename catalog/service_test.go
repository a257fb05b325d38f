package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/validate"
	"github.com/spongetheory/marketplace/store/memory"
	"github.com/spongetheory/marketplace/tier"
)

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) Log(ctx context.Context, action string, opts ...audit.EventOption) error {
	return m.Called(ctx, action).Error(0)
}

func validInput() catalog.ProductInput {
	return catalog.ProductInput{
		Name:      "Summariser",
		LaunchURL: "https://apps.example.com/summariser",
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	t.Run("stores product and audits", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		aud := &mockAuditor{}
		aud.On("Log", mock.Anything, "product.create").Return(nil).Once()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc := catalog.NewService(store, catalog.WithAuditor(aud), catalog.WithClock(func() time.Time { return now }))

		p, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.Equal(t, now, p.CreatedAt)

		got, err := svc.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		aud.AssertExpectations(t)
	})

	t.Run("rejects invalid input with field details", func(t *testing.T) {
		t.Parallel()
		svc := catalog.NewService(memory.New())

		_, err := svc.Create(context.Background(), catalog.ProductInput{LaunchURL: "not a url"})
		require.ErrorIs(t, err, catalog.ErrInvalidProduct)

		var fe validate.FieldErrors
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe, "name")
		assert.Contains(t, fe, "launch_url")
	})
}

func TestService_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := catalog.NewService(memory.New())
	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	name := "Renamed"
	updated, err := svc.Update(ctx, p.ID, catalog.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, p.LaunchURL, updated.LaunchURL)

	empty := ""
	_, err = svc.Update(ctx, p.ID, catalog.ProductPatch{LaunchURL: &empty})
	assert.ErrorIs(t, err, catalog.ErrInvalidProduct)

	_, err = svc.Update(ctx, uuid.New(), catalog.ProductPatch{Name: &name})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	svc := catalog.NewService(store)
	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	ref := "price_1"
	require.NoError(t, store.CreateTier(ctx, tier.Tier{
		ID: uuid.New(), IsFree: false, PriceRef: &ref, ProductIDs: []uuid.UUID{p.ID},
	}))

	assert.ErrorIs(t, svc.Delete(ctx, p.ID), catalog.ErrProductInUse)

	missing, err := svc.Missing(ctx, []uuid.UUID{p.ID, uuid.Nil})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{uuid.Nil}, missing)
}
