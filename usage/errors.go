package usage

import "errors"

var (
	ErrQuotaExceeded   = errors.New("usage quota exceeded")
	ErrCounterNotFound = errors.New("usage counter not found")
)
