package tier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/validate"
)

// Auditor records catalog changes in the audit trail.
type Auditor interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
}

// Registry is the only writer of tiers.
type Registry struct {
	store    Store
	products ProductChecker
	tx       Transactor
	validate *validate.Validator
	audit    Auditor
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithAuditor records tier changes in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(r *Registry) { r.audit = a }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry. products is consulted for every referenced
// product id; tx wraps each write together with its invariant checks.
func NewRegistry(store Store, products ProductChecker, tx Transactor, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		products: products,
		tx:       tx,
		validate: validate.New(),
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the live tiers, cheapest first.
func (r *Registry) List(ctx context.Context) ([]Tier, error) {
	return r.store.ListTiers(ctx)
}

// Get returns a live tier or ErrTierNotFound.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (Tier, error) {
	return r.store.GetTier(ctx, id)
}

// GetByPriceRef maps a processor price onto the tier that sells it.
func (r *Registry) GetByPriceRef(ctx context.Context, ref string) (Tier, error) {
	if ref == "" {
		return Tier{}, ErrPriceRefNotMatched
	}
	t, err := r.store.GetTierByPriceRef(ctx, ref)
	if errors.Is(err, ErrTierNotFound) {
		return Tier{}, ErrPriceRefNotMatched
	}
	return t, err
}

// GetFree returns the free tier or ErrNoFreeTier.
func (r *Registry) GetFree(ctx context.Context) (Tier, error) {
	t, err := r.store.GetFreeTier(ctx)
	if errors.Is(err, ErrTierNotFound) {
		return Tier{}, ErrNoFreeTier
	}
	return t, err
}

// Create validates in and stores a new tier. Marking it popular clears the flag
// on every other tier in the same transaction.
func (r *Registry) Create(ctx context.Context, in Input) (Tier, error) {
	if err := r.validate.Struct(in); err != nil {
		return Tier{}, errors.Join(ErrInvalidTier, err)
	}

	now := r.now().UTC()
	t := Tier{
		ID:            uuid.New(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		BillingPeriod: in.BillingPeriod,
		Tokens:        in.Tokens,
		IsFree:        in.IsFree,
		Popular:       in.Popular,
		PriceRef:      in.PriceRef,
		ProductIDs:    normalizeProducts(in.ProductIDs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := CheckInvariants(t); err != nil {
		return Tier{}, err
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.checkShared(ctx, t); err != nil {
			return err
		}
		if t.Popular {
			if err := r.store.ClearPopular(ctx, t.ID); err != nil {
				return err
			}
		}
		return r.store.CreateTier(ctx, t)
	})
	if err != nil {
		return Tier{}, err
	}

	r.record(ctx, "tier.create", t)
	return t, nil
}

// Update applies patch and re-checks every invariant on the result.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, patch Patch) (Tier, error) {
	if err := r.validate.Struct(patch); err != nil {
		return Tier{}, errors.Join(ErrInvalidTier, err)
	}

	var updated Tier
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := r.store.GetTierForUpdate(ctx, id)
		if err != nil {
			return err
		}
		patch.apply(&t)
		t.ProductIDs = normalizeProducts(t.ProductIDs)
		t.UpdatedAt = r.now().UTC()

		if err := CheckInvariants(t); err != nil {
			return err
		}
		if err := r.checkShared(ctx, t); err != nil {
			return err
		}
		if t.Popular {
			if err := r.store.ClearPopular(ctx, t.ID); err != nil {
				return err
			}
		}
		if err := r.store.UpdateTier(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return Tier{}, err
	}

	r.record(ctx, "tier.update", updated)
	return updated, nil
}

// Delete soft-deletes the tier. It fails with ErrTierInUse while any user
// holds an active subscription on it.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted Tier
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := r.store.GetTierForUpdate(ctx, id)
		if err != nil {
			return err
		}
		n, err := r.store.CountActiveSubscriptions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d active", ErrTierInUse, n)
		}
		deleted = t
		return r.store.SoftDeleteTier(ctx, id, r.now().UTC())
	})
	if err != nil {
		return err
	}

	r.record(ctx, "tier.delete", deleted)
	return nil
}

// checkShared enforces the invariants that span several tiers or products.
func (r *Registry) checkShared(ctx context.Context, t Tier) error {
	missing, err := r.products.Missing(ctx, t.ProductIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidReference, missing)
	}

	if t.IsFree {
		free, err := r.store.GetFreeTier(ctx)
		switch {
		case err == nil && free.ID != t.ID:
			return ErrFreeTierExists
		case err != nil && !errors.Is(err, ErrTierNotFound):
			return err
		}
	}

	if t.PriceRef != nil {
		other, err := r.store.GetTierByPriceRef(ctx, *t.PriceRef)
		switch {
		case err == nil && other.ID != t.ID:
			return ErrPriceRefTaken
		case err != nil && !errors.Is(err, ErrTierNotFound):
			return err
		}
	}
	return nil
}

func (r *Registry) record(ctx context.Context, action string, t Tier) {
	if r.audit == nil {
		return
	}
	err := r.audit.Log(ctx, action,
		audit.WithResource("tier", t.ID.String()),
		audit.WithMetadata("name", t.Name),
		audit.WithMetadata("tokens", t.Tokens),
	)
	if err != nil {
		r.log.WarnContext(ctx, "audit write failed", logger.Error(err), logger.Event(action))
	}
}

func normalizeProducts(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	out = slices.Compact(out)
	if out == nil {
		out = []uuid.UUID{}
	}
	return out
}
