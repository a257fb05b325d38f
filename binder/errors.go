package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidPath          = errors.New("invalid path parameter")

	// ErrBinderNotApplicable tells the caller to skip this binder, e.g. the
	// JSON binder on a request without a body.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)
