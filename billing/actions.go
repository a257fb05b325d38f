package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
)

func isAlreadyActive(_ context.Context, _ State, _ event, data any) bool {
	r, ok := data.(*changeRequest)
	return ok && r.current != nil && r.current.TierID == r.tier.ID
}

func isFreeTier(_ context.Context, _ State, _ event, data any) bool {
	r, ok := data.(*changeRequest)
	return ok && r.tier.IsFree
}

func (o *Orchestrator) activateFree(ctx context.Context, _, _ State, _ event, data any) error {
	r := data.(*changeRequest)
	act, err := o.subs.SetActive(ctx, r.userID, r.tier.ID)
	if err != nil {
		return err
	}
	r.activation = act
	return nil
}

func (o *Orchestrator) openCheckout(ctx context.Context, _, _ State, _ event, data any) error {
	r := data.(*changeRequest)
	if r.tier.PriceRef == nil || *r.tier.PriceRef == "" {
		return ErrTierNotPurchasable
	}
	if o.provider == nil {
		return ErrProviderNotConfigured
	}

	co, err := o.provider.CreateCheckout(ctx, CheckoutRequest{
		UserID:     r.userID,
		Email:      r.email,
		TierID:     r.tier.ID,
		PriceRef:   *r.tier.PriceRef,
		OneTime:    r.tier.BillingPeriod == tier.PeriodOneTime,
		SuccessURL: o.cfg.SuccessURL,
		CancelURL:  o.cfg.CancelURL,
	})
	if err != nil {
		return fmt.Errorf("create checkout: %w", err)
	}
	if co.URL == "" {
		return ErrCheckoutUnavailable
	}
	r.checkout = co
	return nil
}

func (o *Orchestrator) recordPayment(status PaymentStatus) action {
	return func(ctx context.Context, _, _ State, _ event, data any) error {
		r := data.(*reconcileRequest)
		now := o.now().UTC()

		p, err := o.payments.GetPaymentBySession(ctx, r.c.SessionID)
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			p = Payment{ID: uuid.New(), SessionID: r.c.SessionID, CreatedAt: now}
		case err != nil:
			return err
		}

		p.UserID = r.c.UserID
		p.Provider = r.c.Provider
		p.ProviderSubscriptionID = r.c.ProviderSubscriptionID
		p.Amount = r.c.Amount
		p.Status = status
		p.UpdatedAt = now
		switch {
		case r.tier.ID != uuid.Nil:
			id := r.tier.ID
			p.TierID = &id
		case r.c.TierID != uuid.Nil:
			id := r.c.TierID
			p.TierID = &id
		}
		return o.payments.SavePayment(ctx, p)
	}
}

func (o *Orchestrator) activatePaid(ctx context.Context, _, _ State, _ event, data any) error {
	r := data.(*reconcileRequest)
	act, err := o.subs.SetActive(ctx, r.c.UserID, r.tier.ID,
		subscription.WithProviderSubscription(r.c.ProviderSubscriptionID))
	if err != nil {
		return err
	}
	r.activation = act
	return nil
}
