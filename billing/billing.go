package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/tier"
)

// ConfirmationKind is the normalised outcome reported by the processor.
type ConfirmationKind string

const (
	CheckoutCompleted    ConfirmationKind = "checkout_completed"
	CheckoutFailed       ConfirmationKind = "checkout_failed"
	CheckoutAbandoned    ConfirmationKind = "checkout_abandoned"
	SubscriptionCanceled ConfirmationKind = "subscription_canceled"
)

// Confirmation is a verified processor event reduced to what reconciliation needs.
type Confirmation struct {
	Kind                   ConfirmationKind
	Provider               string
	EventID                string
	SessionID              string
	UserID                 string
	PriceRef               string
	TierID                 uuid.UUID // optional, echoed back from checkout metadata
	ProviderSubscriptionID string
	Amount                 tier.Money
}

func (c Confirmation) validate() error {
	if c.Kind == SubscriptionCanceled {
		if c.ProviderSubscriptionID == "" {
			return ErrInvalidConfirmation
		}
		return nil
	}
	if c.SessionID == "" || c.UserID == "" {
		return ErrInvalidConfirmation
	}
	if c.Kind == CheckoutCompleted && c.PriceRef == "" {
		return ErrInvalidConfirmation
	}
	return nil
}

// CheckoutRequest describes the hosted checkout to open for a paid tier.
type CheckoutRequest struct {
	UserID     string
	Email      string
	TierID     uuid.UUID
	PriceRef   string
	OneTime    bool // single charge instead of a recurring subscription
	SuccessURL string
	CancelURL  string
}

// Checkout is the hosted payment page the user is sent to.
type Checkout struct {
	URL       string     `json:"url"`
	SessionID string     `json:"session_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Provider is a payment processor.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	// ParseWebhook verifies the signature and normalises the event. Events
	// that carry no confirmation return ErrUnhandledEvent.
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (Confirmation, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

// PaymentStatus is the ledger state of a checkout session.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentAbandoned PaymentStatus = "abandoned"
	// PaymentUnmatched is a paid checkout whose price resolved to no live tier
	// or to another tier than the one checked out. It needs manual follow-up.
	PaymentUnmatched PaymentStatus = "unmatched"
)

// Payment is the ledger entry for one processed checkout session.
type Payment struct {
	ID                     uuid.UUID     `json:"id"`
	UserID                 string        `json:"user_id"`
	TierID                 *uuid.UUID    `json:"tier_id,omitempty"`
	Provider               string        `json:"provider"`
	SessionID              string        `json:"session_id"`
	ProviderSubscriptionID string        `json:"provider_subscription_id,omitempty"`
	Amount                 tier.Money    `json:"amount"`
	Status                 PaymentStatus `json:"status"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// PaymentStore is the confirmation ledger. LockSession serialises concurrent
// deliveries of the same session until the transaction ends.
type PaymentStore interface {
	LockSession(ctx context.Context, sessionID string) error
	GetPaymentBySession(ctx context.Context, sessionID string) (Payment, error)
	SavePayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, userID string) ([]Payment, error)
}

// Transactor runs fn in one database transaction. Nested calls join the outer one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
