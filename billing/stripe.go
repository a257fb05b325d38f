package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/spongetheory/marketplace/tier"
)

const (
	metaUserID   = "user_id"
	metaTierID   = "tier_id"
	metaPriceRef = "price_ref"
)

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIURL points the client at stripe-mock or another API-compatible host.
	APIURL            string `env:"STRIPE_API_URL"`
	MaxNetworkRetries int64  `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
}

// StripeProvider sells tiers through Stripe Checkout. Recurring tiers use
// subscription mode, one-time tiers use payment mode.
type StripeProvider struct {
	cfg      StripeConfig
	sessions session.Client
	subs     stripesub.Client
}

// NewStripeProvider creates a Stripe provider. Both secrets are required.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries)}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &StripeProvider{
		cfg:      cfg,
		sessions: session.Client{B: backend, Key: cfg.SecretKey},
		subs:     stripesub.Client{B: backend, Key: cfg.SecretKey},
	}, nil
}

// Name implements Provider.
func (p *StripeProvider) Name() string { return "stripe" }

// CreateCheckout opens a Stripe Checkout session. The user and tier travel in
// the session metadata and come back with the webhook.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if req.PriceRef == "" || req.UserID == "" {
		return Checkout{}, ErrInvalidConfirmation
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceRef), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	if req.OneTime {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	} else {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metaUserID: req.UserID, metaTierID: req.TierID.String()},
		}
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata(metaUserID, req.UserID)
	params.AddMetadata(metaTierID, req.TierID.String())
	params.AddMetadata(metaPriceRef, req.PriceRef)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe checkout session: %w", err)
	}

	co := Checkout{URL: s.URL, SessionID: s.ID}
	if s.ExpiresAt > 0 {
		exp := time.Unix(s.ExpiresAt, 0).UTC()
		co.ExpiresAt = &exp
	}
	return co, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalises checkout
// session and subscription events.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, header http.Header) (Confirmation, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Confirmation{}, errors.Join(ErrInvalidSignature, err)
	}

	switch ev.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Confirmation{}, fmt.Errorf("decode checkout session: %w", err)
		}
		kind, ok := stripeSessionKind(string(ev.Type), s.PaymentStatus)
		if !ok {
			return Confirmation{}, ErrUnhandledEvent
		}
		return p.sessionConfirmation(ev.ID, kind, &s), nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return Confirmation{}, fmt.Errorf("decode subscription: %w", err)
		}
		return Confirmation{
			Kind:                   SubscriptionCanceled,
			Provider:               p.Name(),
			EventID:                ev.ID,
			UserID:                 sub.Metadata[metaUserID],
			ProviderSubscriptionID: sub.ID,
		}, nil
	}

	return Confirmation{}, ErrUnhandledEvent
}

// stripeSessionKind maps a checkout session event onto a confirmation kind.
// A completed session with delayed payment methods stays unpaid until one of
// the async events arrives, so it is skipped here.
func stripeSessionKind(eventType string, status stripe.CheckoutSessionPaymentStatus) (ConfirmationKind, bool) {
	switch eventType {
	case "checkout.session.completed":
		if status == stripe.CheckoutSessionPaymentStatusUnpaid {
			return "", false
		}
		return CheckoutCompleted, true
	case "checkout.session.async_payment_succeeded":
		return CheckoutCompleted, true
	case "checkout.session.async_payment_failed":
		return CheckoutFailed, true
	case "checkout.session.expired":
		return CheckoutAbandoned, true
	}
	return "", false
}

func (p *StripeProvider) sessionConfirmation(eventID string, kind ConfirmationKind, s *stripe.CheckoutSession) Confirmation {
	c := Confirmation{
		Kind:      kind,
		Provider:  p.Name(),
		EventID:   eventID,
		SessionID: s.ID,
		UserID:    s.ClientReferenceID,
		PriceRef:  s.Metadata[metaPriceRef],
		Amount:    tier.Money{Amount: s.AmountTotal, Currency: strings.ToLower(string(s.Currency))},
	}
	if c.UserID == "" {
		c.UserID = s.Metadata[metaUserID]
	}
	if id, err := uuid.Parse(s.Metadata[metaTierID]); err == nil {
		c.TierID = id
	}
	if s.Subscription != nil {
		c.ProviderSubscriptionID = s.Subscription.ID
	}
	return c
}

// CancelSubscription cancels the Stripe subscription immediately.
func (p *StripeProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.subs.Cancel(providerSubscriptionID, params); err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}
