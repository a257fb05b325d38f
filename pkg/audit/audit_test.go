package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/pkg/audit"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Store(ctx context.Context, events ...audit.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type actorKey struct{}

func TestLogger(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	actor := func(ctx context.Context) (string, bool) {
		id, ok := ctx.Value(actorKey{}).(string)
		return id, ok
	}

	t.Run("log fills context and options", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Store", mock.Anything, mock.MatchedBy(func(events []audit.Event) bool {
			e := events[0]
			return len(events) == 1 &&
				e.Action == "tier.create" &&
				e.ActorID == "admin_1" &&
				e.RequestID == "req-1" &&
				e.Resource == "tier" && e.ResourceID == "t1" &&
				e.Result == audit.ResultSuccess &&
				e.Metadata["name"] == "Pro" &&
				e.CreatedAt.Equal(fixed)
		})).Return(nil).Once()

		l := audit.NewLogger(storage,
			audit.WithActorExtractor(actor),
			audit.WithRequestIDExtractor(func(context.Context) (string, bool) { return "req-1", true }),
			audit.WithClock(func() time.Time { return fixed }),
		)

		ctx := context.WithValue(context.Background(), actorKey{}, "admin_1")
		err := l.Log(ctx, "tier.create", audit.WithResource("tier", "t1"), audit.WithMetadata("name", "Pro"))
		require.NoError(t, err)
		storage.AssertExpectations(t)
	})

	t.Run("log error records cause", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Store", mock.Anything, mock.MatchedBy(func(events []audit.Event) bool {
			return events[0].Result == audit.ResultError && events[0].Error == "declined" && events[0].ActorID == "stripe"
		})).Return(nil).Once()

		l := audit.NewLogger(storage, audit.WithActorExtractor(actor))
		err := l.LogError(context.Background(), "payment.reconcile", errors.New("declined"), audit.WithActor("stripe"))
		require.NoError(t, err)
		storage.AssertExpectations(t)
	})

	t.Run("empty action is rejected", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		l := audit.NewLogger(storage)
		assert.ErrorIs(t, l.Log(context.Background(), ""), audit.ErrEventValidation)
		storage.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		t.Parallel()
		storage := &mockStorage{}
		storage.On("Store", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		l := audit.NewLogger(storage)
		assert.ErrorIs(t, l.Log(context.Background(), "x"), audit.ErrStorageNotAvailable)
	})

	t.Run("nil storage panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { audit.NewLogger(nil) })
	})
}
