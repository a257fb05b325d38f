package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/statemachine"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
)

// Tiers resolves the tiers a change or confirmation refers to.
type Tiers interface {
	Get(ctx context.Context, id uuid.UUID) (tier.Tier, error)
	GetByPriceRef(ctx context.Context, ref string) (tier.Tier, error)
	GetFree(ctx context.Context) (tier.Tier, error)
}

// Subscriptions is the subscription ledger the orchestrator activates and closes.
type Subscriptions interface {
	GetActive(ctx context.Context, userID string) (subscription.Subscription, error)
	SetActive(ctx context.Context, userID string, tierID uuid.UUID, opts ...subscription.ActivateOption) (subscription.Activation, error)
	Deactivate(ctx context.Context, userID string) (subscription.Subscription, error)
	DeactivateByProviderSubscription(ctx context.Context, providerSubscriptionID string) (subscription.Subscription, error)
}

// Auditor records billing actions in the audit trail.
type Auditor interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
	LogError(ctx context.Context, action string, err error, opts ...audit.EventOption) error
}

// Recorder receives billing metrics.
type Recorder interface {
	TierChangeRequested(path string)
	ConfirmationReconciled(kind, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) TierChangeRequested(string)            {}
func (noopRecorder) ConfirmationReconciled(string, string) {}

// Config holds the processor selection and the checkout return URLs.
type Config struct {
	Provider   string `env:"BILLING_PROVIDER" envDefault:"stripe"`
	SuccessURL string `env:"BILLING_SUCCESS_URL" envDefault:"http://localhost:3000/billing/success"`
	CancelURL  string `env:"BILLING_CANCEL_URL" envDefault:"http://localhost:3000/pricing"`
}

// Orchestrator drives tier changes through the checkout flow and applies
// processor confirmations to the subscription ledger.
type Orchestrator struct {
	cfg      Config
	tiers    Tiers
	subs     Subscriptions
	payments PaymentStore
	tx       Transactor
	provider Provider
	audit    Auditor
	metrics  Recorder
	log      *slog.Logger
	now      func() time.Time
	flow     *statemachine.Definition[State, event]
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAuditor records checkout outcomes in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// WithRecorder sets the metrics sink. Defaults to a no-op.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator. provider may be nil, in which case
// only free tiers can be activated and webhooks fail with
// ErrProviderNotConfigured.
func NewOrchestrator(cfg Config, tiers Tiers, subs Subscriptions, payments PaymentStore, tx Transactor, provider Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		tiers:    tiers,
		subs:     subs,
		payments: payments,
		tx:       tx,
		provider: provider,
		metrics:  noopRecorder{},
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.flow = o.newFlow()
	return o
}

// TierChange is the answer to a tier request. Exactly one of Subscription
// (activated) and Checkout (checkout_pending) is set.
type TierChange struct {
	State        State                      `json:"state"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
	Checkout     *Checkout                  `json:"checkout,omitempty"`
}

// Reconciliation is the outcome of applying a processor confirmation.
type Reconciliation struct {
	State        State                      `json:"state"`
	Duplicate    bool                       `json:"duplicate,omitempty"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
}

type changeRequest struct {
	userID  string
	email   string
	tier    tier.Tier
	current *subscription.Subscription

	activation subscription.Activation
	checkout   Checkout
}

// ChangeOption tunes a single tier change request.
type ChangeOption func(*changeRequest)

// WithEmail pre-fills the checkout page.
func WithEmail(email string) ChangeOption {
	return func(r *changeRequest) { r.email = email }
}

// RequestTierChange starts moving the user to tierID. Free tiers are
// activated immediately. Paid tiers return a checkout link and leave the
// current subscription untouched until the processor confirms payment.
func (o *Orchestrator) RequestTierChange(ctx context.Context, userID string, tierID uuid.UUID, opts ...ChangeOption) (TierChange, error) {
	if userID == "" {
		return TierChange{}, subscription.ErrUserRequired
	}

	t, err := o.tiers.Get(ctx, tierID)
	if err != nil {
		return TierChange{}, err
	}

	req := &changeRequest{userID: userID, tier: t}
	for _, opt := range opts {
		opt(req)
	}

	cur, err := o.subs.GetActive(ctx, userID)
	switch {
	case err == nil:
		req.current = &cur
	case !errors.Is(err, subscription.ErrNoActiveSubscription):
		return TierChange{}, err
	}

	m := o.flow.Start(StateRequested)
	if err := m.Fire(ctx, evSelectTier, req); err != nil {
		o.log.WarnContext(ctx, "tier change failed", logger.UserID(userID), logger.TierID(tierID), logger.Error(err))
		return TierChange{State: m.Current()}, unwrapAction(err)
	}

	res := TierChange{State: m.Current()}
	switch {
	case res.State == StateCheckoutPending:
		res.Checkout = &req.checkout
		o.metrics.TierChangeRequested("checkout")
		o.log.InfoContext(ctx, "checkout opened",
			logger.UserID(userID), logger.TierID(tierID), logger.SessionID(req.checkout.SessionID))
	case req.activation.Changed:
		res.Subscription = &req.activation.Current
		o.metrics.TierChangeRequested("free")
		o.cancelSuperseded(ctx, req.activation)
	default:
		res.Subscription = req.current
		o.metrics.TierChangeRequested("noop")
	}
	return res, nil
}

// RegisterFree puts the user on the free tier.
func (o *Orchestrator) RegisterFree(ctx context.Context, userID string) (TierChange, error) {
	t, err := o.tiers.GetFree(ctx)
	if err != nil {
		return TierChange{}, err
	}
	return o.RequestTierChange(ctx, userID, t.ID)
}

// HandleWebhook verifies a processor delivery and reconciles it.
func (o *Orchestrator) HandleWebhook(ctx context.Context, payload []byte, header http.Header) (Reconciliation, error) {
	if o.provider == nil {
		return Reconciliation{}, ErrProviderNotConfigured
	}
	c, err := o.provider.ParseWebhook(ctx, payload, header)
	if err != nil {
		return Reconciliation{}, err
	}
	return o.Reconcile(ctx, c)
}

type reconcileRequest struct {
	c          Confirmation
	tier       tier.Tier
	activation subscription.Activation
}

// Reconcile applies a confirmation exactly once per checkout session. The
// ledger entry and the activation share one transaction, so a crash between
// them cannot lose a payment or apply it twice. A replay of a completed
// session returns a Duplicate result without error. Failed and abandoned
// checkouts are recorded and reported through ErrPaymentFailed and
// ErrPaymentAbandoned; the user's subscription is left as it was.
//
// A paid checkout whose price matches no live tier, or a different tier than
// the one checked out, is kept in the ledger as PaymentUnmatched and reported
// through ErrUnmatchedPayment. The session stays open, so a redelivery after
// the catalog is fixed activates the tier.
func (o *Orchestrator) Reconcile(ctx context.Context, c Confirmation) (Reconciliation, error) {
	if err := c.validate(); err != nil {
		o.metrics.ConfirmationReconciled(string(c.Kind), "invalid")
		return Reconciliation{}, err
	}
	if c.Kind == SubscriptionCanceled {
		return o.reconcileCancellation(ctx, c)
	}

	req := &reconcileRequest{c: c}
	var ev event
	switch c.Kind {
	case CheckoutCompleted:
		ev = evConfirmPaid
	case CheckoutFailed:
		ev = evConfirmFailed
	case CheckoutAbandoned:
		ev = evConfirmAbandoned
	default:
		return Reconciliation{}, ErrUnhandledEvent
	}

	m := o.flow.Start(StateCheckoutPending)
	var unmatched error
	err := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.payments.LockSession(ctx, c.SessionID); err != nil {
			return err
		}
		prev, err := o.payments.GetPaymentBySession(ctx, c.SessionID)
		switch {
		case err == nil && prev.Status == PaymentCompleted:
			return ErrDuplicateConfirmation
		case err != nil && !errors.Is(err, ErrPaymentNotFound):
			return err
		}

		if c.Kind == CheckoutCompleted {
			t, err := o.matchTier(ctx, c)
			if isUnmatched(err) {
				unmatched = err
				return o.recordPayment(PaymentUnmatched)(ctx, StateCheckoutPending, StateCheckoutPending, ev, req)
			}
			if err != nil {
				return err
			}
			req.tier = t
		}

		if err := m.Fire(ctx, ev, req); err != nil {
			return err
		}
		if m.Current() == StateCheckoutComplete {
			return m.Fire(ctx, evActivate, req)
		}
		return nil
	})

	log := o.log.With(logger.Provider(c.Provider), logger.SessionID(c.SessionID), logger.UserID(c.UserID))
	if errors.Is(err, ErrDuplicateConfirmation) {
		o.metrics.ConfirmationReconciled(string(c.Kind), "duplicate")
		log.InfoContext(ctx, "duplicate confirmation ignored")
		return Reconciliation{State: StateActivated, Duplicate: true}, nil
	}
	if err != nil {
		o.metrics.ConfirmationReconciled(string(c.Kind), "error")
		log.ErrorContext(ctx, "reconciliation failed", logger.Error(err))
		return Reconciliation{State: StateCheckoutPending}, unwrapAction(err)
	}
	if unmatched != nil {
		err := fmt.Errorf("%w: %w", ErrUnmatchedPayment, unmatched)
		o.metrics.ConfirmationReconciled(string(c.Kind), "unmatched")
		log.ErrorContext(ctx, "paid checkout matches no tier", slog.String("price_ref", c.PriceRef), logger.Error(unmatched))
		o.record(ctx, c, err)
		return Reconciliation{State: StateCheckoutPending}, err
	}

	switch m.Current() {
	case StateActivated:
		o.metrics.ConfirmationReconciled(string(c.Kind), "activated")
		log.InfoContext(ctx, "paid tier activated", logger.TierID(req.tier.ID))
		o.record(ctx, c, nil)
		o.cancelSuperseded(ctx, req.activation)
		return Reconciliation{State: StateActivated, Subscription: &req.activation.Current}, nil

	case StateCheckoutFailed:
		_ = m.Fire(ctx, evRetry, req)
		o.metrics.ConfirmationReconciled(string(c.Kind), "failed")
		log.WarnContext(ctx, "payment failed")
		o.record(ctx, c, ErrPaymentFailed)
		return Reconciliation{State: m.Current()}, ErrPaymentFailed

	default:
		o.metrics.ConfirmationReconciled(string(c.Kind), "abandoned")
		log.InfoContext(ctx, "checkout abandoned")
		o.record(ctx, c, ErrPaymentAbandoned)
		return Reconciliation{State: m.Current()}, ErrPaymentAbandoned
	}
}

// matchTier resolves the live tier a paid confirmation is for.
func (o *Orchestrator) matchTier(ctx context.Context, c Confirmation) (tier.Tier, error) {
	t, err := o.tiers.GetByPriceRef(ctx, c.PriceRef)
	if err != nil {
		return tier.Tier{}, err
	}
	if c.TierID != uuid.Nil && c.TierID != t.ID {
		return tier.Tier{}, fmt.Errorf("%w: price %s belongs to %s, checkout was for %s", ErrTierMismatch, c.PriceRef, t.ID, c.TierID)
	}
	return t, nil
}

func isUnmatched(err error) bool {
	return errors.Is(err, tier.ErrPriceRefNotMatched) || errors.Is(err, ErrTierMismatch)
}

func (o *Orchestrator) reconcileCancellation(ctx context.Context, c Confirmation) (Reconciliation, error) {
	closed, err := o.subs.DeactivateByProviderSubscription(ctx, c.ProviderSubscriptionID)
	if errors.Is(err, subscription.ErrNoActiveSubscription) {
		o.metrics.ConfirmationReconciled(string(c.Kind), "ignored")
		return Reconciliation{State: StateRequested}, nil
	}
	if err != nil {
		o.metrics.ConfirmationReconciled(string(c.Kind), "error")
		return Reconciliation{}, err
	}
	o.metrics.ConfirmationReconciled(string(c.Kind), "deactivated")
	return Reconciliation{State: StateRequested, Subscription: &closed}, nil
}

// Cancel ends the user's subscription at the processor and then locally.
func (o *Orchestrator) Cancel(ctx context.Context, userID string) (subscription.Subscription, error) {
	cur, err := o.subs.GetActive(ctx, userID)
	if err != nil {
		return subscription.Subscription{}, err
	}
	if cur.ProviderSubscriptionID != "" {
		if o.provider == nil {
			return subscription.Subscription{}, ErrProviderNotConfigured
		}
		if err := o.provider.CancelSubscription(ctx, cur.ProviderSubscriptionID); err != nil {
			return subscription.Subscription{}, fmt.Errorf("cancel at provider: %w", err)
		}
	}
	return o.subs.Deactivate(ctx, userID)
}

// Payments lists the user's processed checkouts, newest first.
func (o *Orchestrator) Payments(ctx context.Context, userID string) ([]Payment, error) {
	if userID == "" {
		return nil, subscription.ErrUserRequired
	}
	return o.payments.ListPayments(ctx, userID)
}

// cancelSuperseded stops billing for a processor subscription that no longer
// backs the active tier. It runs after commit; failures are logged for
// manual follow-up and do not undo the activation.
func (o *Orchestrator) cancelSuperseded(ctx context.Context, act subscription.Activation) {
	old := act.Superseded
	if old == nil || old.ProviderSubscriptionID == "" || old.ProviderSubscriptionID == act.Current.ProviderSubscriptionID {
		return
	}
	if o.provider == nil {
		return
	}
	if err := o.provider.CancelSubscription(ctx, old.ProviderSubscriptionID); err != nil {
		o.log.ErrorContext(ctx, "failed to cancel superseded provider subscription",
			logger.UserID(old.UserID),
			slog.String("provider_subscription_id", old.ProviderSubscriptionID),
			logger.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, c Confirmation, cause error) {
	if o.audit == nil {
		return
	}
	opts := []audit.EventOption{
		audit.WithActor(c.Provider),
		audit.WithResource("checkout_session", c.SessionID),
		audit.WithMetadata("user_id", c.UserID),
		audit.WithMetadata("kind", string(c.Kind)),
	}
	var err error
	if cause == nil {
		err = o.audit.Log(ctx, "payment.confirm", opts...)
	} else {
		err = o.audit.LogError(ctx, "payment.confirm", cause, opts...)
	}
	if err != nil {
		o.log.WarnContext(ctx, "audit write failed", logger.Error(err))
	}
}

// unwrapAction strips the state machine wrapper so callers can match domain errors directly.
func unwrapAction(err error) error {
	var ae *statemachine.ActionError
	if errors.As(err, &ae) {
		return ae.Err
	}
	return err
}
