package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/api"
	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
		key  string
	}{
		{catalog.ErrProductNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("load: %w", subscription.ErrNoActiveSubscription), http.StatusNotFound, "not_found"},
		{errors.Join(tier.ErrInvalidTier, errors.New("tokens")), http.StatusUnprocessableEntity, "unprocessable_entity"},
		{tier.ErrFreeTierExists, http.StatusConflict, "conflict"},
		{tier.ErrPopularConflict, http.StatusConflict, "conflict"},
		{catalog.ErrProductInUse, http.StatusConflict, "conflict"},
		{usage.ErrQuotaExceeded, http.StatusPaymentRequired, "quota_exceeded"},
		{billing.ErrPaymentFailed, http.StatusPaymentRequired, "payment_required"},
		{access.ErrNotEntitled, http.StatusForbidden, "forbidden"},
		{access.ErrTokenReused, http.StatusConflict, "launch_token_reused"},
		{access.ErrProductMismatch, http.StatusUnauthorized, "invalid_launch_token"},
		{identity.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{identity.ErrForbidden, http.StatusForbidden, "forbidden"},
		{billing.ErrCheckoutUnavailable, http.StatusBadGateway, "bad_gateway"},
		{billing.ErrProviderNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			var httpErr handler.HTTPError
			require.ErrorAs(t, api.Classify(tt.err), &httpErr)
			assert.Equal(t, tt.code, httpErr.Code)
			assert.Equal(t, tt.key, httpErr.Key)
		})
	}

	t.Run("unknown errors pass through", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		assert.Same(t, err, api.Classify(err))
		assert.NoError(t, api.Classify(nil))
	})

	t.Run("http errors are kept", func(t *testing.T) {
		t.Parallel()
		err := handler.ErrBadRequest.WithMessage("nope")
		assert.Equal(t, err, api.Classify(err))
	})
}
