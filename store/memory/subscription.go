package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/subscription"
)

var errNotInTx = errors.New("memory: lock requires a transaction")

// LockUser only checks that the caller is inside a transaction, which
// already serialises every writer.
func (s *Store) LockUser(ctx context.Context, _ string) error {
	if !s.inTx(ctx) {
		return errNotInTx
	}
	return nil
}

// GetActiveSubscription returns the user's active row or subscription.ErrSubscriptionNotFound.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (subscription.Subscription, error) {
	defer s.lock(ctx)()
	for _, sub := range s.d.subscriptions {
		if sub.UserID == userID && sub.Status == subscription.StatusActive {
			return sub, nil
		}
	}
	return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
}

// FindActiveByProviderSubscription returns the active row backed by the processor subscription.
func (s *Store) FindActiveByProviderSubscription(ctx context.Context, providerSubscriptionID string) (subscription.Subscription, error) {
	defer s.lock(ctx)()
	for _, sub := range s.d.subscriptions {
		if sub.ProviderSubscriptionID == providerSubscriptionID && sub.Status == subscription.StatusActive {
			return sub, nil
		}
	}
	return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
}

var errActiveExists = errors.New("memory: user already has an active subscription")

// InsertSubscription rejects a second active row for the same user.
func (s *Store) InsertSubscription(ctx context.Context, sub subscription.Subscription) error {
	defer s.lock(ctx)()
	if sub.Status == subscription.StatusActive {
		for _, other := range s.d.subscriptions {
			if other.UserID == sub.UserID && other.Status == subscription.StatusActive {
				return errActiveExists
			}
		}
	}
	s.d.subscriptions[sub.ID] = sub
	return nil
}

// CloseSubscription marks the row inactive as of endedAt.
func (s *Store) CloseSubscription(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	defer s.lock(ctx)()
	sub, ok := s.d.subscriptions[id]
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	sub.Status = subscription.StatusInactive
	sub.EndDate = &endedAt
	sub.UpdatedAt = endedAt
	s.d.subscriptions[id] = sub
	return nil
}

// SetProviderSubscription links the row to a processor subscription.
func (s *Store) SetProviderSubscription(ctx context.Context, id uuid.UUID, providerSubscriptionID string, at time.Time) error {
	defer s.lock(ctx)()
	sub, ok := s.d.subscriptions[id]
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	sub.ProviderSubscriptionID = providerSubscriptionID
	sub.UpdatedAt = at
	s.d.subscriptions[id] = sub
	return nil
}

// ListSubscriptions returns the user's rows, newest first.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	defer s.lock(ctx)()
	var out []subscription.Subscription
	for _, sub := range s.d.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b subscription.Subscription) int {
		return b.StartDate.Compare(a.StartDate)
	})
	return out, nil
}
