package memory

import (
	"context"
	"time"

	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

// IncrementCounter spends one call unless the counter is at its maximum.
func (s *Store) IncrementCounter(ctx context.Context, userID string, at time.Time) (usage.Counter, error) {
	defer s.lock(ctx)()
	c, ok := s.d.counters[userID]
	if !ok {
		return usage.Counter{}, usage.ErrCounterNotFound
	}
	if c.Max != usage.Unbounded && c.Used >= c.Max {
		return c, usage.ErrQuotaExceeded
	}
	c.Used++
	c.UpdatedAt = at
	s.d.counters[userID] = c
	return c, nil
}

// GetCounter returns the counter or usage.ErrCounterNotFound.
func (s *Store) GetCounter(ctx context.Context, userID string) (usage.Counter, error) {
	defer s.lock(ctx)()
	c, ok := s.d.counters[userID]
	if !ok {
		return usage.Counter{}, usage.ErrCounterNotFound
	}
	return c, nil
}

// ResetCounter starts a fresh period with nothing used.
func (s *Store) ResetCounter(ctx context.Context, userID string, max int64, refills bool, at time.Time) error {
	defer s.lock(ctx)()
	s.d.counters[userID] = usage.Counter{
		UserID:      userID,
		Max:         max,
		Refills:     refills,
		PeriodStart: at,
		UpdatedAt:   at,
	}
	return nil
}

// ResizeCounter changes the maximum and keeps the usage. Missing counters are ignored.
func (s *Store) ResizeCounter(ctx context.Context, userID string, max int64, at time.Time) error {
	defer s.lock(ctx)()
	c, ok := s.d.counters[userID]
	if !ok {
		return nil
	}
	c.Max = max
	c.UpdatedAt = at
	s.d.counters[userID] = c
	return nil
}

// RefillCounters starts a new period for refillable counters that began at or
// before cutoff, taking the maximum from the user's active tier.
func (s *Store) RefillCounters(ctx context.Context, cutoff, at time.Time) (int64, error) {
	defer s.lock(ctx)()
	var n int64
	for id, c := range s.d.counters {
		if !c.Refills || c.PeriodStart.After(cutoff) {
			continue
		}
		if t, ok := s.activeTier(id); ok {
			c.Max = t.Tokens
		}
		c.Used = 0
		c.PeriodStart = at
		c.UpdatedAt = at
		s.d.counters[id] = c
		n++
	}
	return n, nil
}

// activeTier must be called with the lock held. It returns the live tier of
// the user's active subscription.
func (s *Store) activeTier(userID string) (tier.Tier, bool) {
	for _, sub := range s.d.subscriptions {
		if sub.UserID != userID || sub.Status != subscription.StatusActive {
			continue
		}
		t, ok := s.d.tiers[sub.TierID]
		if !ok || t.DeletedAt != nil {
			return tier.Tier{}, false
		}
		return t, true
	}
	return tier.Tier{}, false
}
