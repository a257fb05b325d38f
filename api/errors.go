package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

var (
	errQuotaExceeded = handler.HTTPError{Code: http.StatusPaymentRequired, Key: "quota_exceeded"}
	errTokenInvalid  = handler.HTTPError{Code: http.StatusUnauthorized, Key: "invalid_launch_token"}
	errTokenReused   = handler.HTTPError{Code: http.StatusConflict, Key: "launch_token_reused"}
)

// Classify maps domain errors onto HTTP errors. Errors it does not know are
// returned unchanged and end up as 500.
func Classify(err error) error {
	var httpErr handler.HTTPError
	if err == nil || errors.As(err, &httpErr) {
		return err
	}

	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, tier.ErrTierNotFound),
		errors.Is(err, tier.ErrNoFreeTier),
		errors.Is(err, subscription.ErrNoActiveSubscription),
		errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrPaymentNotFound):
		return handler.ErrNotFound.Wrap(err)

	case errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, tier.ErrInvalidTier),
		errors.Is(err, tier.ErrInvalidReference),
		errors.Is(err, billing.ErrTierNotPurchasable),
		errors.Is(err, subscription.ErrUserRequired):
		return handler.ErrUnprocessableEntity.Wrap(err)

	case errors.Is(err, catalog.ErrProductInUse),
		errors.Is(err, tier.ErrTierInUse),
		errors.Is(err, tier.ErrFreeTierExists),
		errors.Is(err, tier.ErrPriceRefTaken),
		errors.Is(err, tier.ErrPopularConflict):
		return handler.ErrConflict.Wrap(err)

	case errors.Is(err, usage.ErrQuotaExceeded):
		return errQuotaExceeded.WithMessage("usage quota exceeded, upgrade your plan to continue")

	case errors.Is(err, billing.ErrPaymentFailed),
		errors.Is(err, billing.ErrPaymentAbandoned):
		return handler.ErrPaymentRequired.Wrap(err)

	case errors.Is(err, access.ErrNotEntitled):
		return handler.ErrForbidden.Wrap(err)
	case errors.Is(err, access.ErrTokenReused):
		return errTokenReused.Wrap(err)
	case errors.Is(err, access.ErrTokenInvalid),
		errors.Is(err, access.ErrProductMismatch):
		return errTokenInvalid.Wrap(err)

	case errors.Is(err, identity.ErrForbidden):
		return handler.ErrForbidden.Wrap(err)
	case errors.Is(err, identity.ErrUnauthorized),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken):
		return handler.ErrUnauthorized.Wrap(err)

	case errors.Is(err, billing.ErrCheckoutUnavailable):
		return handler.ErrBadGateway.Wrap(err)
	case errors.Is(err, billing.ErrProviderNotConfigured):
		return handler.ErrServiceUnavailable.Wrap(err)
	}
	return err
}

// authErrors renders identity middleware failures in the JSON envelope.
func authErrors(log *slog.Logger) identity.ErrorHandler {
	onError := handler.NewErrorHandler(log, Classify)
	return func(w http.ResponseWriter, r *http.Request, err error) {
		onError(handler.NewContext(w, r), err)
	}
}

// principal returns the authenticated caller. Routes that call it sit behind
// identity.RequireUser.
func principal(ctx handler.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Principal{}, identity.ErrUnauthorized
	}
	return p, nil
}
