package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
)

// ListTiers returns the live tiers, cheapest first.
func (s *Store) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	defer s.lock(ctx)()
	out := make([]tier.Tier, 0, len(s.d.tiers))
	for _, t := range s.d.tiers {
		if t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b tier.Tier) int {
		return cmp.Or(cmp.Compare(a.Price.Amount, b.Price.Amount), a.CreatedAt.Compare(b.CreatedAt))
	})
	return out, nil
}

// GetTier returns a live tier or tier.ErrTierNotFound.
func (s *Store) GetTier(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	defer s.lock(ctx)()
	return s.liveTier(id)
}

// GetTierForUpdate and GetTierForShare need no row locks here: callers hold
// the store lock for the whole transaction.
func (s *Store) GetTierForUpdate(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	return s.GetTier(ctx, id)
}

// GetTierForShare is GetTier; the store lock already excludes concurrent writers.
func (s *Store) GetTierForShare(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	return s.GetTier(ctx, id)
}

// GetTierByPriceRef returns the live tier sold under ref.
func (s *Store) GetTierByPriceRef(ctx context.Context, ref string) (tier.Tier, error) {
	defer s.lock(ctx)()
	for _, t := range s.d.tiers {
		if t.DeletedAt == nil && t.PriceRef != nil && *t.PriceRef == ref {
			return t, nil
		}
	}
	return tier.Tier{}, tier.ErrTierNotFound
}

// GetFreeTier returns the live free tier.
func (s *Store) GetFreeTier(ctx context.Context) (tier.Tier, error) {
	defer s.lock(ctx)()
	for _, t := range s.d.tiers {
		if t.DeletedAt == nil && t.IsFree {
			return t, nil
		}
	}
	return tier.Tier{}, tier.ErrTierNotFound
}

// CreateTier stores t. Invariants are checked by the registry.
func (s *Store) CreateTier(ctx context.Context, t tier.Tier) error {
	defer s.lock(ctx)()
	s.d.tiers[t.ID] = t
	return nil
}

// UpdateTier replaces a live tier.
func (s *Store) UpdateTier(ctx context.Context, t tier.Tier) error {
	defer s.lock(ctx)()
	if _, err := s.liveTier(t.ID); err != nil {
		return err
	}
	s.d.tiers[t.ID] = t
	return nil
}

// ClearPopular unmarks every popular tier except the given one.
func (s *Store) ClearPopular(ctx context.Context, except uuid.UUID) error {
	defer s.lock(ctx)()
	for id, t := range s.d.tiers {
		if id != except && t.Popular {
			t.Popular = false
			s.d.tiers[id] = t
		}
	}
	return nil
}

// SoftDeleteTier hides the tier and releases its products and popular flag.
func (s *Store) SoftDeleteTier(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer s.lock(ctx)()
	t, err := s.liveTier(id)
	if err != nil {
		return err
	}
	t.DeletedAt = &at
	t.Popular = false
	t.ProductIDs = []uuid.UUID{}
	t.UpdatedAt = at
	s.d.tiers[id] = t
	return nil
}

// CountActiveSubscriptions counts the active rows on tierID.
func (s *Store) CountActiveSubscriptions(ctx context.Context, tierID uuid.UUID) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, sub := range s.d.subscriptions {
		if sub.TierID == tierID && sub.Status == subscription.StatusActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) liveTier(id uuid.UUID) (tier.Tier, error) {
	t, ok := s.d.tiers[id]
	if !ok || t.DeletedAt != nil {
		return tier.Tier{}, tier.ErrTierNotFound
	}
	return t, nil
}
