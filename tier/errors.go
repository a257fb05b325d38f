package tier

import "errors"

var (
	ErrTierNotFound       = errors.New("tier not found")
	ErrInvalidTier        = errors.New("invalid tier")
	ErrInvalidReference   = errors.New("tier references unknown products")
	ErrFreeTierExists     = errors.New("a free tier already exists")
	ErrPriceRefTaken      = errors.New("price reference is used by another tier")
	ErrPopularConflict    = errors.New("another tier was marked popular at the same time")
	ErrTierInUse          = errors.New("tier has active subscriptions")
	ErrNoFreeTier         = errors.New("no free tier is configured")
	ErrPriceRefNotMatched = errors.New("no tier matches price reference")
)
