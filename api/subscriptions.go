package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/entitlement"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
)

// maxWebhookBody caps processor deliveries.
const maxWebhookBody = 1 << 20

// Billing is the tier change and checkout flow behind the subscription routes.
type Billing interface {
	RequestTierChange(ctx context.Context, userID string, tierID uuid.UUID, opts ...billing.ChangeOption) (billing.TierChange, error)
	RegisterFree(ctx context.Context, userID string) (billing.TierChange, error)
	HandleWebhook(ctx context.Context, payload []byte, header http.Header) (billing.Reconciliation, error)
	Cancel(ctx context.Context, userID string) (subscription.Subscription, error)
	Payments(ctx context.Context, userID string) ([]billing.Payment, error)
}

// Subscriptions reads the subscription ledger.
type Subscriptions interface {
	GetActive(ctx context.Context, userID string) (subscription.Subscription, error)
	History(ctx context.Context, userID string) ([]subscription.Subscription, error)
}

// Entitlements resolves what a user may use right now.
type Entitlements interface {
	Resolve(ctx context.Context, userID string) (entitlement.Entitlement, error)
}

// SubscriptionsAPI lets a signed-in user move between tiers and receives
// the processor's webhooks.
type SubscriptionsAPI struct {
	billing      Billing
	subs         Subscriptions
	entitlements Entitlements
	log          *slog.Logger
	onError      handler.ErrorHandler
}

// NewSubscriptionsAPI creates the subscription handlers. A nil log falls back to a no-op logger.
func NewSubscriptionsAPI(b Billing, subs Subscriptions, ents Entitlements, log *slog.Logger) *SubscriptionsAPI {
	if log == nil {
		log = logger.Noop()
	}
	return &SubscriptionsAPI{
		billing:      b,
		subs:         subs,
		entitlements: ents,
		log:          log,
		onError:      handler.NewErrorHandler(log, Classify),
	}
}

type checkoutRequest struct {
	TierID uuid.UUID `json:"tier_id"`
}

// tierChangeResponse is what the pricing page acts on: follow RedirectURL
// when present, otherwise the change is already active.
type tierChangeResponse struct {
	State        billing.State              `json:"state"`
	RedirectURL  string                     `json:"redirect_url,omitempty"`
	SessionID    string                     `json:"session_id,omitempty"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
}

func newTierChangeResponse(c billing.TierChange) tierChangeResponse {
	res := tierChangeResponse{State: c.State, Subscription: c.Subscription}
	if c.Checkout != nil {
		res.RedirectURL = c.Checkout.URL
		res.SessionID = c.Checkout.SessionID
	}
	return res
}

type meResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Entitlement  entitlement.Entitlement    `json:"entitlement"`
}

// Handle returns the routes mounted under /subscriptions.
func (a *SubscriptionsAPI) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook", a.webhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireUser(authErrors(a.log)))
		r.Post("/free", handler.Wrap(a.registerFree,
			handler.WithErrorHandler[struct{}](a.onError),
		))
		r.Post("/checkout", handler.Wrap(a.checkout,
			handler.WithBinders[checkoutRequest](binder.JSON()),
			handler.WithErrorHandler[checkoutRequest](a.onError),
		))
		r.Get("/me", handler.Wrap(a.me,
			handler.WithErrorHandler[struct{}](a.onError),
		))
		r.Get("/history", handler.Wrap(a.history,
			handler.WithErrorHandler[struct{}](a.onError),
		))
		r.Get("/payments", handler.Wrap(a.payments,
			handler.WithErrorHandler[struct{}](a.onError),
		))
		r.Post("/cancel", handler.Wrap(a.cancel,
			handler.WithErrorHandler[struct{}](a.onError),
		))
	})
	return r
}

func (a *SubscriptionsAPI) registerFree(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	change, err := a.billing.RegisterFree(ctx, p.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(newTierChangeResponse(change))
}

func (a *SubscriptionsAPI) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	if req.TierID == uuid.Nil {
		return handler.Fail(handler.ErrUnprocessableEntity.WithMessage("tier_id is required"))
	}

	var opts []billing.ChangeOption
	if p.Email != "" {
		opts = append(opts, billing.WithEmail(p.Email))
	}
	change, err := a.billing.RequestTierChange(ctx, p.UserID, req.TierID, opts...)
	if errors.Is(err, tier.ErrTierNotFound) {
		// The id came from the caller's body; it is a bad reference, not a missing route.
		return handler.Fail(handler.ErrUnprocessableEntity.Wrap(fmt.Errorf("%w: %s", err, req.TierID)))
	}
	if err != nil {
		return handler.Fail(err)
	}

	status := http.StatusOK
	if change.Checkout != nil {
		status = http.StatusAccepted
	}
	return handler.JSON(newTierChangeResponse(change), handler.WithJSONStatus(status))
}

func (a *SubscriptionsAPI) me(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}

	var res meResponse
	sub, err := a.subs.GetActive(ctx, p.UserID)
	switch {
	case err == nil:
		res.Subscription = &sub
	case !errors.Is(err, subscription.ErrNoActiveSubscription):
		return handler.Fail(err)
	}

	res.Entitlement, err = a.entitlements.Resolve(ctx, p.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(res)
}

func (a *SubscriptionsAPI) history(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	subs, err := a.subs.History(ctx, p.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return handler.JSON(subs, handler.WithJSONMeta(map[string]any{"total": len(subs)}))
}

func (a *SubscriptionsAPI) payments(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	payments, err := a.billing.Payments(ctx, p.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	return handler.JSON(payments, handler.WithJSONMeta(map[string]any{"total": len(payments)}))
}

func (a *SubscriptionsAPI) cancel(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return handler.Fail(err)
	}
	sub, err := a.billing.Cancel(ctx, p.UserID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(sub)
}

// webhook answers the processor directly. Deliveries that can never succeed
// are acknowledged with 200 so they are not retried; a bad signature is 400
// and anything transient is 500 so the processor redelivers.
func (a *SubscriptionsAPI) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		a.log.WarnContext(ctx, "webhook body rejected", logger.Error(err), logger.Component("webhook"))
		_ = handler.JSONError(handler.ErrBadRequest.Wrap(err)).Render(w, r)
		return
	}

	res, err := a.billing.HandleWebhook(ctx, payload, r.Header)
	status := webhookStatus(err)
	log := a.log.With(logger.Component("webhook"), slog.Int("status_code", status), slog.String("state", string(res.State)))
	switch {
	case err == nil:
		log.InfoContext(ctx, "webhook processed", slog.Bool("duplicate", res.Duplicate))
		_ = handler.JSON(res).Render(w, r)
	case status == http.StatusOK:
		log.InfoContext(ctx, "webhook acknowledged without effect", logger.Error(err))
		_ = handler.JSON(handler.JSONResponse{
			Data: res,
			Meta: map[string]any{"ignored": err.Error()},
		}).Render(w, r)
	case status == http.StatusBadRequest:
		log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		_ = handler.JSONError(handler.ErrBadRequest.WithMessage("invalid signature")).Render(w, r)
	default:
		log.ErrorContext(ctx, "webhook failed", logger.Error(err))
		_ = handler.JSONError(err).Render(w, r)
	}
}

func webhookStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrUnmatchedPayment):
		// The processor redelivers until the catalog resolves the price.
		return http.StatusInternalServerError
	case errors.Is(err, billing.ErrUnhandledEvent),
		errors.Is(err, billing.ErrInvalidConfirmation),
		errors.Is(err, billing.ErrPaymentFailed),
		errors.Is(err, billing.ErrPaymentAbandoned):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
