package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxBodySize caps JSON bodies read by JSON.
const DefaultMaxBodySize int64 = 1 << 20

type jsonConfig struct {
	maxBody int64
}

type JSONOption func(*jsonConfig)

func WithMaxBodySize(n int64) JSONOption {
	return func(c *jsonConfig) { c.maxBody = n }
}

// JSON decodes an application/json body in strict mode: unknown fields and
// trailing data are rejected. A request with neither body nor Content-Type
// returns ErrBinderNotApplicable.
func JSON(opts ...JSONOption) func(r *http.Request, v any) error {
	cfg := jsonConfig{maxBody: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(r *http.Request, v any) error {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			if r.ContentLength == 0 {
				return ErrBinderNotApplicable
			}
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}

		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, contentType)
		}

		decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, cfg.maxBody))
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(v); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, tooLarge.Limit)
			case errors.Is(err, io.EOF):
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			default:
				return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
			}
		}

		var extra json.RawMessage
		if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}
		return nil
	}
}
