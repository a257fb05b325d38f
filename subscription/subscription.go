package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/tier"
)

// Status of a subscription row. Only one row per user is active.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Subscription is one period a user spent on a tier. EndDate is set once it is
// superseded or canceled.
type Subscription struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 string     `json:"user_id"`
	TierID                 uuid.UUID  `json:"tier_id"`
	Status                 Status     `json:"status"`
	StartDate              time.Time  `json:"start_date"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the subscription grants access at t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.Status == StatusActive && (s.EndDate == nil || s.EndDate.After(t))
}

// Activation describes the outcome of SetActive.
type Activation struct {
	Current Subscription
	// Superseded is the row that was replaced, if any. Its provider
	// subscription, when set, is no longer backing anything.
	Superseded *Subscription
	// Changed is false when the requested tier was already active.
	Changed bool
}

// Store persists subscriptions. LockUser must be called inside a transaction
// and serialises all writers for that user until it ends.
type Store interface {
	LockUser(ctx context.Context, userID string) error
	GetActiveSubscription(ctx context.Context, userID string) (Subscription, error)
	FindActiveByProviderSubscription(ctx context.Context, providerSubscriptionID string) (Subscription, error)
	InsertSubscription(ctx context.Context, s Subscription) error
	CloseSubscription(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	SetProviderSubscription(ctx context.Context, id uuid.UUID, providerSubscriptionID string, at time.Time) error
	ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
}

// TierLookup reads a live tier and keeps it from being deleted until the
// transaction ends.
type TierLookup interface {
	GetTierForShare(ctx context.Context, id uuid.UUID) (tier.Tier, error)
}

// Counters is the part of the usage store that follows tier changes.
type Counters interface {
	ResetCounter(ctx context.Context, userID string, max int64, refills bool, at time.Time) error
	ResizeCounter(ctx context.Context, userID string, max int64, at time.Time) error
}

// Transactor runs fn in one database transaction. Nested calls join the outer one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
