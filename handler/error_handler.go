package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/spongetheory/marketplace/binder"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/requestid"
)

// Classifier turns a domain error into an HTTPError. It returns the input
// unchanged when it does not recognise the error.
type Classifier func(err error) error

// BindingError maps binder failures to 400 and 415.
func BindingError(err error) error {
	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrUnsupportedMediaType.Wrap(err)
	case errors.Is(err, binder.ErrInvalidJSON), errors.Is(err, binder.ErrInvalidQuery),
		errors.Is(err, binder.ErrInvalidPath), errors.Is(err, binder.ErrBodyTooLarge):
		return ErrBadRequest.Wrap(err)
	}
	return err
}

func logLevel(status int) slog.Level {
	if status < http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// NewErrorHandler logs the error and renders it as a JSON envelope. Each
// classifier runs in order on the output of the previous one.
func NewErrorHandler(log *slog.Logger, classifiers ...Classifier) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	classifiers = append([]Classifier{BindingError}, classifiers...)

	return func(ctx Context, err error) {
		mapped := err
		for _, c := range classifiers {
			mapped = c(mapped)
		}

		resp := &jsonResponse{status: http.StatusInternalServerError}
		resp.body.Error = errorToDetail(mapped, &resp.status)

		r := ctx.Request()
		log.LogAttrs(r.Context(), logLevel(resp.status), "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}
