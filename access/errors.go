package access

import "errors"

var (
	ErrNotEntitled     = errors.New("product is not included in the current tier")
	ErrTokenInvalid    = errors.New("launch token is invalid or expired")
	ErrTokenReused     = errors.New("launch token was already used")
	ErrMissingSecret   = errors.New("access token secret is required")
	ErrProductMismatch = errors.New("launch token was issued for another product")
)
