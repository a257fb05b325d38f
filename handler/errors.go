package handler

import (
	"errors"
	"net/http"
)

var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError carries a status code and a stable machine-readable key. Message,
// when set, replaces the status text in the rendered body.
type HTTPError struct {
	Code    int
	Key     string
	Message string
	Err     error
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Key
}

func (e HTTPError) Unwrap() error {
	return e.Err
}

// WithMessage returns a copy with a caller-facing message.
func (e HTTPError) WithMessage(msg string) HTTPError {
	e.Message = msg
	return e
}

// Wrap returns a copy that keeps err as its cause; the message is err's text.
func (e HTTPError) Wrap(err error) HTTPError {
	e.Err = err
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

var (
	ErrBadRequest           = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized         = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrPaymentRequired      = HTTPError{Code: http.StatusPaymentRequired, Key: "payment_required"}
	ErrForbidden            = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound             = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict             = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnsupportedMediaType = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}
	ErrUnprocessableEntity  = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrInternalServerError  = HTTPError{Code: http.StatusInternalServerError, Key: "internal_server_error"}
	ErrBadGateway           = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
	ErrServiceUnavailable   = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

type failResponse struct {
	err error
}

func (f failResponse) Render(http.ResponseWriter, *http.Request) error {
	return f.err
}

// Fail hands err to the ErrorHandler configured on Wrap, so a handler's
// domain errors are classified and logged in one place.
func Fail(err error) Response {
	return failResponse{err: err}
}
