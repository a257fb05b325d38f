package billing

import "errors"

var (
	ErrInvalidSignature      = errors.New("webhook signature verification failed")
	ErrUnhandledEvent        = errors.New("webhook event is not handled")
	ErrInvalidConfirmation   = errors.New("payment confirmation is missing required fields")
	ErrTierMismatch          = errors.New("confirmed price does not belong to the requested tier")
	ErrUnmatchedPayment      = errors.New("paid checkout matches no tier")
	ErrDuplicateConfirmation = errors.New("checkout session already confirmed")
	ErrPaymentFailed         = errors.New("payment failed")
	ErrPaymentAbandoned      = errors.New("checkout abandoned")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrCheckoutUnavailable   = errors.New("payment processor did not return a checkout")
	ErrProviderNotConfigured = errors.New("billing provider is not configured")
	ErrTierNotPurchasable    = errors.New("tier has no processor price")
)
