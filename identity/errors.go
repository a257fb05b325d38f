package identity

import "errors"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("admin role required")
)
