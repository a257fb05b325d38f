// Package entitlement answers "what may this user do right now": which tier
// they are on, which products it unlocks and how much usage is left. The
// answer is always derived from the stored subscription and counter, never
// cached, and any doubt resolves to no access.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

// Entitlement is what a user may use right now: their tier, its products and
// the remaining quota.
type Entitlement struct {
	Tier     *tier.Tier  `json:"tier"`
	Products []uuid.UUID `json:"products"`
	Quota    usage.Quota `json:"quota"`
}

// Includes reports whether productID is unlocked.
func (e Entitlement) Includes(productID uuid.UUID) bool {
	return slices.Contains(e.Products, productID)
}

// Subscriptions finds the user's active subscription.
type Subscriptions interface {
	GetActive(ctx context.Context, userID string) (subscription.Subscription, error)
}

// Tiers loads the tier of a subscription.
type Tiers interface {
	Get(ctx context.Context, id uuid.UUID) (tier.Tier, error)
}

// Quotas reads the user's usage counter.
type Quotas interface {
	Get(ctx context.Context, userID string) (usage.Quota, error)
}

// Resolver assembles entitlements.
type Resolver struct {
	subs   Subscriptions
	tiers  Tiers
	quotas Quotas
	log    *slog.Logger
}

// NewResolver creates a resolver. A nil log falls back to a no-op logger.
func NewResolver(subs Subscriptions, tiers Tiers, quotas Quotas, log *slog.Logger) *Resolver {
	if log == nil {
		log = logger.Noop()
	}
	return &Resolver{subs: subs, tiers: tiers, quotas: quotas, log: log}
}

// Resolve computes the user's entitlement. Without an active subscription on
// a live tier the result has no tier, no products and a zero maximum.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Entitlement, error) {
	ent := Entitlement{Products: []uuid.UUID{}}

	q, err := r.quotas.Get(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}

	sub, err := r.subs.GetActive(ctx, userID)
	switch {
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		ent.Quota = usage.Quota{Used: q.Used}
		return ent, nil
	case err != nil:
		return Entitlement{}, err
	}

	t, err := r.tiers.Get(ctx, sub.TierID)
	switch {
	case errors.Is(err, tier.ErrTierNotFound):
		r.log.WarnContext(ctx, "active subscription points at a missing tier",
			logger.UserID(userID), logger.TierID(sub.TierID))
		ent.Quota = usage.Quota{Used: q.Used}
		return ent, nil
	case err != nil:
		return Entitlement{}, err
	}

	ent.Tier = &t
	ent.Products = append(ent.Products, t.ProductIDs...)
	ent.Quota = q
	return ent, nil
}

// CanAccess is Resolve reduced to one product. Errors deny access.
func (r *Resolver) CanAccess(ctx context.Context, userID string, productID uuid.UUID) bool {
	ent, err := r.Resolve(ctx, userID)
	if err != nil {
		r.log.ErrorContext(ctx, "entitlement check failed", logger.UserID(userID), logger.Error(err))
		return false
	}
	return ent.Includes(productID)
}
