package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrUserRequired         = errors.New("user id is required")
)
