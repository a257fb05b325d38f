package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults to json at info", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))

		log.Debug("hidden")
		assert.Zero(t, buf.Len())

		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})

	t.Run("level by name", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevelName("warn"))
		log.Info("skipped")
		assert.Zero(t, buf.Len())
		log.Warn("kept")
		assert.Equal(t, "kept", decode(t, buf)["msg"])
	})

	t.Run("production environment", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithEnvironment("prod", "marketplace"))
		log.Info("up")
		entry := decode(t, buf)
		assert.Equal(t, "marketplace", entry["service"])
		assert.Equal(t, logger.EnvProduction, entry["env"])
	})

	t.Run("development environment logs debug as text", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithEnvironment("", "marketplace"))
		log.Debug("details")
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "env=development")
	})
}

type ctxKey struct{}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextValue("tenant", ctxKey{}),
		logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
			return slog.String("static", "yes"), true
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "acme")
	log.InfoContext(ctx, "scoped", logger.Error(errors.New("boom")), logger.UserID("user_1"))

	entry := decode(t, buf)
	assert.Equal(t, "acme", entry["tenant"])
	assert.Equal(t, "yes", entry["static"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "user_1", entry["user_id"])
}

func TestEmptyAttrsAreDropped(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))
	log.Info("no extras", logger.Error(nil), logger.UserID(""), logger.RequestID(""))

	entry := decode(t, buf)
	assert.NotContains(t, entry, "error")
	assert.NotContains(t, entry, "user_id")
	assert.NotContains(t, entry, "request_id")
}
