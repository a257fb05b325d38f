package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/subscription"
)

const subscriptionColumns = `id, user_id, tier_id, status, start_date, end_date,
	COALESCE(provider_subscription_id, ''), created_at, updated_at`

func scanSubscription(row pgx.Row) (subscription.Subscription, error) {
	var sub subscription.Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.TierID, &sub.Status, &sub.StartDate, &sub.EndDate,
		&sub.ProviderSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return subscription.Subscription{}, subscription.ErrSubscriptionNotFound
	}
	return sub, err
}

// LockUser takes a transaction-scoped advisory lock on the user.
func (s *Store) LockUser(ctx context.Context, userID string) error {
	return s.advisoryLock(ctx, "user:"+userID)
}

// GetActiveSubscription returns the user's active row or subscription.ErrSubscriptionNotFound.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (subscription.Subscription, error) {
	return scanSubscription(s.db(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 AND status = 'active'`, userID))
}

// FindActiveByProviderSubscription returns the active row backed by the processor subscription.
func (s *Store) FindActiveByProviderSubscription(ctx context.Context, providerSubscriptionID string) (subscription.Subscription, error) {
	return scanSubscription(s.db(ctx).QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE provider_subscription_id = $1 AND status = 'active'`, providerSubscriptionID))
}

// InsertSubscription stores sub. A partial unique index allows one active row per user.
func (s *Store) InsertSubscription(ctx context.Context, sub subscription.Subscription) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, tier_id, status, start_date, end_date,
			provider_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		sub.ID, sub.UserID, sub.TierID, sub.Status, sub.StartDate, sub.EndDate,
		sub.ProviderSubscriptionID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// CloseSubscription marks the row inactive as of endedAt.
func (s *Store) CloseSubscription(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE subscriptions SET status = 'inactive', end_date = $2, updated_at = $2
		WHERE id = $1`, id, endedAt)
	if err != nil {
		return fmt.Errorf("close subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

// SetProviderSubscription links the row to a processor subscription.
func (s *Store) SetProviderSubscription(ctx context.Context, id uuid.UUID, providerSubscriptionID string, at time.Time) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE subscriptions SET provider_subscription_id = NULLIF($2, ''), updated_at = $3
		WHERE id = $1`, id, providerSubscriptionID, at)
	if err != nil {
		return fmt.Errorf("set provider subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns the user's rows, newest first.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 ORDER BY start_date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
