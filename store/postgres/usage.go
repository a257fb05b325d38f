package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/usage"
)

const counterColumns = `user_id, used, max_calls, refills, period_start, updated_at`

func scanCounter(row pgx.Row) (usage.Counter, error) {
	var c usage.Counter
	err := row.Scan(&c.UserID, &c.Used, &c.Max, &c.Refills, &c.PeriodStart, &c.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return usage.Counter{}, usage.ErrCounterNotFound
	}
	return c, err
}

// IncrementCounter relies on the row lock taken by UPDATE: concurrent callers
// re-evaluate the bound after the previous writer commits.
func (s *Store) IncrementCounter(ctx context.Context, userID string, at time.Time) (usage.Counter, error) {
	c, err := scanCounter(s.db(ctx).QueryRow(ctx, `
		UPDATE usage_counters SET used = used + 1, updated_at = $2
		WHERE user_id = $1 AND (max_calls = -1 OR used < max_calls)
		RETURNING `+counterColumns, userID, at))
	if err == nil {
		return c, nil
	}
	if err != usage.ErrCounterNotFound {
		return usage.Counter{}, fmt.Errorf("increment counter: %w", err)
	}
	c, err = s.GetCounter(ctx, userID)
	if err != nil {
		return usage.Counter{}, err
	}
	return c, usage.ErrQuotaExceeded
}

// GetCounter returns the counter or usage.ErrCounterNotFound.
func (s *Store) GetCounter(ctx context.Context, userID string) (usage.Counter, error) {
	return scanCounter(s.db(ctx).QueryRow(ctx,
		`SELECT `+counterColumns+` FROM usage_counters WHERE user_id = $1`, userID))
}

// ResetCounter starts a fresh period with nothing used.
func (s *Store) ResetCounter(ctx context.Context, userID string, max int64, refills bool, at time.Time) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO usage_counters (user_id, used, max_calls, refills, period_start, updated_at)
		VALUES ($1, 0, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET used = 0, max_calls = EXCLUDED.max_calls, refills = EXCLUDED.refills,
			period_start = EXCLUDED.period_start, updated_at = EXCLUDED.updated_at`,
		userID, max, refills, at)
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

// ResizeCounter changes the maximum and keeps the usage. Missing counters are ignored.
func (s *Store) ResizeCounter(ctx context.Context, userID string, max int64, at time.Time) error {
	_, err := s.db(ctx).Exec(ctx,
		`UPDATE usage_counters SET max_calls = $2, updated_at = $3 WHERE user_id = $1`, userID, max, at)
	if err != nil {
		return fmt.Errorf("resize counter: %w", err)
	}
	return nil
}

// RefillCounters starts a new period for refillable counters that began at or
// before cutoff. The maximum is taken from the user's active live tier and
// kept when there is none.
func (s *Store) RefillCounters(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE usage_counters c
		SET used = 0,
			max_calls = COALESCE((
				SELECT t.tokens FROM subscriptions s
				JOIN tiers t ON t.id = s.tier_id AND t.deleted_at IS NULL
				WHERE s.user_id = c.user_id AND s.status = 'active'
			), c.max_calls),
			period_start = $2,
			updated_at = $2
		WHERE c.refills AND c.period_start <= $1`, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("refill counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
