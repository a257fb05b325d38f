package billing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/billing"
)

const paddleSecret = "pdl_ntfset_test"

func newPaddle(t *testing.T) *billing.PaddleProvider {
	t.Helper()
	p, err := billing.NewPaddleProvider(billing.PaddleConfig{
		APIKey: "pdl_sdbx_apikey_test", WebhookSecret: paddleSecret, Environment: "sandbox",
	})
	require.NoError(t, err)
	return p
}

func signPaddle(payload, secret string) http.Header {
	ts := fmt.Sprint(time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":" + payload))
	return http.Header{"Paddle-Signature": {"ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))}}
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tierID := uuid.New()

	transaction := func(eventType string) string {
		return `{
			"event_id": "evt_01",
			"event_type": "` + eventType + `",
			"data": {
				"id": "txn_01",
				"subscription_id": "sub_01",
				"currency_code": "USD",
				"custom_data": {"user_id": "user-1", "tier_id": "` + tierID.String() + `"},
				"items": [{"price": {"id": "pri_pro"}, "quantity": 1}],
				"details": {"totals": {"grand_total": "1900"}}
			}
		}`
	}

	t.Run("completed transaction", func(t *testing.T) {
		t.Parallel()
		p := newPaddle(t)
		payload := transaction("transaction.completed")

		c, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload, paddleSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.CheckoutCompleted, c.Kind)
		assert.Equal(t, "paddle", c.Provider)
		assert.Equal(t, "txn_01", c.SessionID)
		assert.Equal(t, "user-1", c.UserID)
		assert.Equal(t, "pri_pro", c.PriceRef)
		assert.Equal(t, tierID, c.TierID)
		assert.Equal(t, "sub_01", c.ProviderSubscriptionID)
		assert.Equal(t, int64(1900), c.Amount.Amount)
		assert.Equal(t, "usd", c.Amount.Currency)
	})

	t.Run("failed and canceled transactions", func(t *testing.T) {
		t.Parallel()
		p := newPaddle(t)
		for eventType, want := range map[string]billing.ConfirmationKind{
			"transaction.payment_failed": billing.CheckoutFailed,
			"transaction.canceled":       billing.CheckoutAbandoned,
		} {
			payload := transaction(eventType)
			c, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload, paddleSecret))
			require.NoError(t, err)
			assert.Equal(t, want, c.Kind, eventType)
		}
	})

	t.Run("subscription canceled", func(t *testing.T) {
		t.Parallel()
		p := newPaddle(t)
		payload := `{"event_id":"evt_02","event_type":"subscription.canceled","data":{"id":"sub_01","custom_data":{"user_id":"user-1"}}}`

		c, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload, paddleSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.SubscriptionCanceled, c.Kind)
		assert.Equal(t, "sub_01", c.ProviderSubscriptionID)
	})

	t.Run("unhandled event", func(t *testing.T) {
		t.Parallel()
		p := newPaddle(t)
		payload := `{"event_id":"evt_03","event_type":"customer.created","data":{}}`
		_, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload, paddleSecret))
		assert.ErrorIs(t, err, billing.ErrUnhandledEvent)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		p := newPaddle(t)
		payload := transaction("transaction.completed")
		_, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload, "wrong"))
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)

		_, err = p.ParseWebhook(ctx, []byte(payload), http.Header{})
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := billing.NewPaddleProvider(billing.PaddleConfig{WebhookSecret: "x"})
	assert.Error(t, err)

	_, err = billing.NewPaddleProvider(billing.PaddleConfig{APIKey: "k", WebhookSecret: "x", Environment: "staging"})
	assert.Error(t, err)
}
