package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/api"
	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/entitlement"
	"github.com/spongetheory/marketplace/handler"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/metrics"
	"github.com/spongetheory/marketplace/store/memory"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

type stubVerifier map[string]identity.Principal

func (s stubVerifier) Verify(_ context.Context, raw string) (identity.Principal, error) {
	p, ok := s[raw]
	if !ok {
		return identity.Principal{}, identity.ErrInvalidToken
	}
	return p, nil
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (billing.Checkout, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(billing.Checkout), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (billing.Confirmation, error) {
	args := m.Called(ctx, payload, header)
	return args.Get(0).(billing.Confirmation), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type fixture struct {
	srv      *httptest.Server
	provider *mockProvider
	product  catalog.Product
	free     tier.Tier
	pro      tier.Tier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Noop()
	store := memory.New()

	products := catalog.NewService(store)
	registry := tier.NewRegistry(store, products, store)
	subs := subscription.NewService(store, store, store, store)
	meter := usage.NewService(store)
	resolver := entitlement.NewResolver(subs, registry, meter, log)
	provider := &mockProvider{}
	orch := billing.NewOrchestrator(billing.Config{}, registry, subs, store, store, provider)
	launcher, err := access.NewService(access.Config{Secret: "test-secret"}, access.NewMemoryNonces(100), resolver, products, meter)
	require.NoError(t, err)

	f := &fixture{provider: provider}
	f.product, err = products.Create(ctx, catalog.ProductInput{Name: "Writer", LaunchURL: "https://writer.example.com"})
	require.NoError(t, err)
	f.free, err = registry.Create(ctx, tier.Input{
		Name: "Free", Price: tier.Money{Currency: "usd"}, BillingPeriod: tier.PeriodFree, Tokens: 1, IsFree: true,
		ProductIDs: []uuid.UUID{f.product.ID},
	})
	require.NoError(t, err)
	ref := "price_pro"
	f.pro, err = registry.Create(ctx, tier.Input{
		Name: "Pro", Price: tier.Money{Amount: 1900, Currency: "usd"}, BillingPeriod: tier.PeriodMonthly,
		Tokens: 100, PriceRef: &ref, ProductIDs: []uuid.UUID{f.product.ID},
	})
	require.NoError(t, err)

	router := api.Router(api.RouterOptions{
		Products:      api.NewProductsAPI(products, launcher, log),
		Tiers:         api.NewTiersAPI(registry, log),
		Subscriptions: api.NewSubscriptionsAPI(orch, subs, resolver, log),
		Access:        api.NewAccessAPI(launcher, log),
		Admin:         api.NewAdminAPI(subs, resolver, log),
		Verifier: stubVerifier{
			"user-token":  {UserID: "user-1", Email: "user@example.com"},
			"admin-token": {UserID: "admin-1", Admin: true},
		},
		Metrics: metrics.New(),
		Logger:  log,
	})
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (int, handler.JSONResponse, json.RawMessage) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env handler.JSONResponse
	var data struct {
		Data json.RawMessage `json:"data"`
	}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
		require.NoError(t, json.Unmarshal(raw, &data))
	}
	return resp.StatusCode, env, data.Data
}

func TestCatalogRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	t.Run("reads are public", func(t *testing.T) {
		status, env, _ := f.do(t, http.MethodGet, "/api/v1/tiers", "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 2, env.Meta["total"])

		status, _, _ = f.do(t, http.MethodGet, "/api/v1/products/"+f.product.ID.String(), "", "")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("writes need an admin", func(t *testing.T) {
		body := `{"name":"Coder","launch_url":"https://coder.example.com"}`
		status, env, _ := f.do(t, http.MethodPost, "/api/v1/products", "", body)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", env.Error.Code)

		status, env, _ = f.do(t, http.MethodPost, "/api/v1/products", "user-token", body)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "forbidden", env.Error.Code)

		status, _, _ = f.do(t, http.MethodPost, "/api/v1/products", "admin-token", body)
		assert.Equal(t, http.StatusCreated, status)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		status, _, _ := f.do(t, http.MethodGet, "/api/v1/tiers", "forged", "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("error mapping", func(t *testing.T) {
		status, env, _ := f.do(t, http.MethodGet, "/api/v1/tiers/"+uuid.NewString(), "", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", env.Error.Code)

		status, env, _ = f.do(t, http.MethodPost, "/api/v1/tiers", "admin-token",
			`{"name":"","price":{"amount":0,"currency":"usd"},"billing_period":"weekly","tokens":-2}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.Contains(t, env.Error.Details, "billing_period")

		status, _, _ = f.do(t, http.MethodPost, "/api/v1/tiers", "admin-token",
			`{"name":"Other","price":{"amount":0,"currency":"usd"},"billing_period":"free","tokens":1,"is_free":true}`)
		assert.Equal(t, http.StatusConflict, status)

		status, _, _ = f.do(t, http.MethodPost, "/api/v1/tiers", "admin-token",
			`{"name":"Ghost","price":{"amount":100,"currency":"usd"},"billing_period":"monthly","tokens":1,
			"external_price_ref":"price_ghost","product_ids":["`+uuid.NewString()+`"]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)

		status, _, _ = f.do(t, http.MethodDelete, "/api/v1/products/"+f.product.ID.String(), "admin-token", "")
		assert.Equal(t, http.StatusConflict, status)

		status, _, _ = f.do(t, http.MethodGet, "/api/v1/tiers/not-a-uuid", "", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("popular flag moves", func(t *testing.T) {
		status, _, _ := f.do(t, http.MethodPatch, "/api/v1/tiers/"+f.free.ID.String(), "admin-token", `{"popular":true}`)
		require.Equal(t, http.StatusOK, status)
		status, _, _ = f.do(t, http.MethodPatch, "/api/v1/tiers/"+f.pro.ID.String(), "admin-token", `{"popular":true}`)
		require.Equal(t, http.StatusOK, status)

		_, _, data := f.do(t, http.MethodGet, "/api/v1/tiers", "", "")
		var tiers []tier.Tier
		require.NoError(t, json.Unmarshal(data, &tiers))
		popular := 0
		for _, tr := range tiers {
			if tr.Popular {
				popular++
				assert.Equal(t, f.pro.ID, tr.ID)
			}
		}
		assert.Equal(t, 1, popular)
	})
}

func TestSubscriptionFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	t.Run("requires a user", func(t *testing.T) {
		status, _, _ := f.do(t, http.MethodGet, "/api/v1/subscriptions/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("no subscription means no entitlement", func(t *testing.T) {
		status, _, data := f.do(t, http.MethodGet, "/api/v1/subscriptions/me", "user-token", "")
		require.Equal(t, http.StatusOK, status)
		var me struct {
			Subscription *subscription.Subscription `json:"subscription"`
			Entitlement  entitlement.Entitlement    `json:"entitlement"`
		}
		require.NoError(t, json.Unmarshal(data, &me))
		assert.Nil(t, me.Subscription)
		assert.Nil(t, me.Entitlement.Tier)
		assert.Zero(t, me.Entitlement.Quota.Max)
	})

	t.Run("launch is forbidden without a tier", func(t *testing.T) {
		status, _, _ := f.do(t, http.MethodPost, "/api/v1/products/"+f.product.ID.String()+"/launch", "user-token", "")
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("free registration", func(t *testing.T) {
		status, _, data := f.do(t, http.MethodPost, "/api/v1/subscriptions/free", "user-token", "")
		require.Equal(t, http.StatusOK, status)
		var res struct {
			State        string                    `json:"state"`
			Subscription subscription.Subscription `json:"subscription"`
		}
		require.NoError(t, json.Unmarshal(data, &res))
		assert.Equal(t, "activated", res.State)
		assert.Equal(t, f.free.ID, res.Subscription.TierID)
	})

	t.Run("launch, redeem once and hit the quota", func(t *testing.T) {
		launch := func() access.Launch {
			status, _, data := f.do(t, http.MethodPost, "/api/v1/products/"+f.product.ID.String()+"/launch", "user-token", "")
			require.Equal(t, http.StatusCreated, status)
			var l access.Launch
			require.NoError(t, json.Unmarshal(data, &l))
			return l
		}
		verify := func(token string) (int, handler.JSONResponse) {
			status, env, _ := f.do(t, http.MethodPost, "/api/v1/access/verify", "",
				`{"token":"`+token+`","product_id":"`+f.product.ID.String()+`"}`)
			return status, env
		}

		first := launch()
		status, _ := verify(first.Token)
		assert.Equal(t, http.StatusOK, status)

		status, env := verify(first.Token)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "launch_token_reused", env.Error.Code)

		status, env = verify(launch().Token)
		assert.Equal(t, http.StatusPaymentRequired, status)
		assert.Equal(t, "quota_exceeded", env.Error.Code)

		status, env = verify("garbage")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_launch_token", env.Error.Code)
	})

	t.Run("paid checkout returns a redirect", func(t *testing.T) {
		f.provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r billing.CheckoutRequest) bool {
			return r.UserID == "user-1" && r.PriceRef == "price_pro" && r.Email == "user@example.com"
		})).Return(billing.Checkout{URL: "https://pay.test/cs_1", SessionID: "cs_1"}, nil).Once()

		status, _, data := f.do(t, http.MethodPost, "/api/v1/subscriptions/checkout", "user-token",
			`{"tier_id":"`+f.pro.ID.String()+`"}`)
		require.Equal(t, http.StatusAccepted, status)
		var res struct {
			State       string `json:"state"`
			RedirectURL string `json:"redirect_url"`
		}
		require.NoError(t, json.Unmarshal(data, &res))
		assert.Equal(t, "checkout_pending", res.State)
		assert.Equal(t, "https://pay.test/cs_1", res.RedirectURL)

		status, _, _ = f.do(t, http.MethodPost, "/api/v1/subscriptions/checkout", "user-token",
			`{"tier_id":"`+uuid.NewString()+`"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("webhook statuses", func(t *testing.T) {
		confirm := billing.Confirmation{
			Kind: billing.CheckoutCompleted, Provider: "mock", SessionID: "cs_1", UserID: "user-1",
			PriceRef: "price_pro", ProviderSubscriptionID: "sub_1", Amount: f.pro.Price,
		}
		f.provider.On("ParseWebhook", mock.Anything, []byte("ok"), mock.Anything).Return(confirm, nil)
		f.provider.On("ParseWebhook", mock.Anything, []byte("forged"), mock.Anything).
			Return(billing.Confirmation{}, billing.ErrInvalidSignature).Once()
		f.provider.On("ParseWebhook", mock.Anything, []byte("other"), mock.Anything).
			Return(billing.Confirmation{}, billing.ErrUnhandledEvent).Once()
		f.provider.On("ParseWebhook", mock.Anything, []byte("renamed"), mock.Anything).Return(billing.Confirmation{
			Kind: billing.CheckoutCompleted, Provider: "mock", SessionID: "cs_9", UserID: "user-9",
			PriceRef: "price_renamed", Amount: f.pro.Price,
		}, nil).Once()

		post := func(body string) int {
			resp, err := http.Post(f.srv.URL+"/api/v1/subscriptions/webhook", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			return resp.StatusCode
		}

		assert.Equal(t, http.StatusOK, post("ok"))
		assert.Equal(t, http.StatusOK, post("ok"), "replay is acknowledged")
		assert.Equal(t, http.StatusBadRequest, post("forged"))
		assert.Equal(t, http.StatusOK, post("other"))
		assert.Equal(t, http.StatusInternalServerError, post("renamed"), "unmatched payment is redelivered")

		_, _, data := f.do(t, http.MethodGet, "/api/v1/subscriptions/me", "user-token", "")
		var me struct {
			Subscription subscription.Subscription `json:"subscription"`
			Entitlement  entitlement.Entitlement   `json:"entitlement"`
		}
		require.NoError(t, json.Unmarshal(data, &me))
		assert.Equal(t, f.pro.ID, me.Subscription.TierID)
		assert.EqualValues(t, 100, me.Entitlement.Quota.Max)

		status, env, _ := f.do(t, http.MethodGet, "/api/v1/subscriptions/payments", "user-token", "")
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 1, env.Meta["total"])
	})

	t.Run("history and admin view", func(t *testing.T) {
		status, env, _ := f.do(t, http.MethodGet, "/api/v1/subscriptions/history", "user-token", "")
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 2, env.Meta["total"])

		status, _, _ = f.do(t, http.MethodGet, "/api/v1/admin/users/user-1/entitlement", "user-token", "")
		assert.Equal(t, http.StatusForbidden, status)

		status, _, data := f.do(t, http.MethodGet, "/api/v1/admin/users/user-1/entitlement", "admin-token", "")
		require.Equal(t, http.StatusOK, status)
		var ent entitlement.Entitlement
		require.NoError(t, json.Unmarshal(data, &ent))
		require.NotNil(t, ent.Tier)
		assert.Equal(t, f.pro.ID, ent.Tier.ID)
	})

	t.Run("cancel", func(t *testing.T) {
		f.provider.On("CancelSubscription", mock.Anything, "sub_1").Return(nil).Once()

		status, _, _ := f.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", "user-token", "")
		assert.Equal(t, http.StatusOK, status)

		status, env, _ := f.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", "user-token", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", env.Error.Code)
	})

	f.provider.AssertExpectations(t)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
