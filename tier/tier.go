package tier

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Unlimited is the token allowance that never runs out.
const Unlimited int64 = -1

// BillingPeriod is how often a tier is charged.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodYearly  BillingPeriod = "yearly"
	PeriodOneTime BillingPeriod = "one_time"
	PeriodFree    BillingPeriod = "free"
)

// Refills reports whether usage allowances renew each month.
func (p BillingPeriod) Refills() bool {
	return p != PeriodOneTime
}

// Money is an amount in the currency's minor unit.
type Money struct {
	Amount   int64  `json:"amount" validate:"gte=0"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// Tier is a priced bundle of products with a monthly token allowance.
type Tier struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Price         Money         `json:"price"`
	BillingPeriod BillingPeriod `json:"billing_period"`
	Tokens        int64         `json:"tokens"`
	IsFree        bool          `json:"is_free"`
	Popular       bool          `json:"popular"`
	PriceRef      *string       `json:"external_price_ref,omitempty"`
	ProductIDs    []uuid.UUID   `json:"product_ids"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	DeletedAt     *time.Time    `json:"-"`
}

// Unlimited reports whether the tier's allowance never runs out.
func (t Tier) Unlimited() bool {
	return t.Tokens == Unlimited
}

// Includes reports whether productID is part of the tier.
func (t Tier) Includes(productID uuid.UUID) bool {
	return slices.Contains(t.ProductIDs, productID)
}

// Store persists tiers and their product relation. Reads skip soft-deleted tiers.
type Store interface {
	ListTiers(ctx context.Context) ([]Tier, error)
	GetTier(ctx context.Context, id uuid.UUID) (Tier, error)
	// GetTierForUpdate locks the tier row until the surrounding transaction ends.
	GetTierForUpdate(ctx context.Context, id uuid.UUID) (Tier, error)
	GetTierByPriceRef(ctx context.Context, ref string) (Tier, error)
	GetFreeTier(ctx context.Context) (Tier, error)
	CreateTier(ctx context.Context, t Tier) error
	UpdateTier(ctx context.Context, t Tier) error
	ClearPopular(ctx context.Context, except uuid.UUID) error
	SoftDeleteTier(ctx context.Context, id uuid.UUID, at time.Time) error
	CountActiveSubscriptions(ctx context.Context, tierID uuid.UUID) (int, error)
}

// ProductChecker reports product ids that do not exist.
type ProductChecker interface {
	Missing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

// Transactor runs fn atomically. Stores called with the ctx passed to fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
