package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/tier"
)

// PaddleConfig configures the Paddle Billing client.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider sells tiers through Paddle Billing transactions.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle provider for the configured environment.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{client: client, verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

// Name implements Provider.
func (p *PaddleProvider) Name() string { return "paddle" }

// CreateCheckout opens a Paddle transaction for the tier's price and returns its checkout URL.
func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if req.PriceRef == "" || req.UserID == "" {
		return Checkout{}, ErrInvalidConfirmation
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceRef,
		Quantity: 1,
	})
	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			metaUserID:   req.UserID,
			metaTierID:   req.TierID.String(),
			metaPriceRef: req.PriceRef,
		},
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return Checkout{}, fmt.Errorf("paddle transaction: %w", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil {
		return Checkout{}, ErrCheckoutUnavailable
	}

	return Checkout{URL: *txn.Checkout.URL, SessionID: txn.ID}, nil
}

type paddleEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type paddleTransaction struct {
	ID             string            `json:"id"`
	SubscriptionID *string           `json:"subscription_id"`
	CurrencyCode   string            `json:"currency_code"`
	CustomData     map[string]string `json:"custom_data"`
	Items          []struct {
		PriceID string `json:"price_id"`
		Price   struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	Details struct {
		Totals struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

// ParseWebhook verifies the Paddle-Signature header and normalises transaction
// and subscription events.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (Confirmation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return Confirmation{}, err
	}
	req.Header.Set("Paddle-Signature", header.Get("Paddle-Signature"))

	ok, err := p.verifier.Verify(req)
	if err != nil || !ok {
		return Confirmation{}, errors.Join(ErrInvalidSignature, err)
	}

	var ev paddleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Confirmation{}, fmt.Errorf("decode paddle event: %w", err)
	}

	switch ev.EventType {
	case "transaction.completed", "transaction.payment_failed", "transaction.canceled":
		var txn paddleTransaction
		if err := json.Unmarshal(ev.Data, &txn); err != nil {
			return Confirmation{}, fmt.Errorf("decode paddle transaction: %w", err)
		}
		return p.transactionConfirmation(ev, txn), nil

	case "subscription.canceled":
		var sub struct {
			ID         string            `json:"id"`
			CustomData map[string]string `json:"custom_data"`
		}
		if err := json.Unmarshal(ev.Data, &sub); err != nil {
			return Confirmation{}, fmt.Errorf("decode paddle subscription: %w", err)
		}
		return Confirmation{
			Kind:                   SubscriptionCanceled,
			Provider:               p.Name(),
			EventID:                ev.EventID,
			UserID:                 sub.CustomData[metaUserID],
			ProviderSubscriptionID: sub.ID,
		}, nil
	}

	return Confirmation{}, ErrUnhandledEvent
}

func (p *PaddleProvider) transactionConfirmation(ev paddleEvent, txn paddleTransaction) Confirmation {
	c := Confirmation{
		Provider:  p.Name(),
		EventID:   ev.EventID,
		SessionID: txn.ID,
		UserID:    txn.CustomData[metaUserID],
		PriceRef:  txn.CustomData[metaPriceRef],
	}
	switch ev.EventType {
	case "transaction.completed":
		c.Kind = CheckoutCompleted
	case "transaction.payment_failed":
		c.Kind = CheckoutFailed
	default:
		c.Kind = CheckoutAbandoned
	}

	if len(txn.Items) > 0 {
		if ref := txn.Items[0].Price.ID; ref != "" {
			c.PriceRef = ref
		} else if txn.Items[0].PriceID != "" {
			c.PriceRef = txn.Items[0].PriceID
		}
	}
	if id, err := uuid.Parse(txn.CustomData[metaTierID]); err == nil {
		c.TierID = id
	}
	if txn.SubscriptionID != nil {
		c.ProviderSubscriptionID = *txn.SubscriptionID
	}
	if amount, err := strconv.ParseInt(txn.Details.Totals.GrandTotal, 10, 64); err == nil {
		c.Amount = tier.Money{Amount: amount, Currency: strings.ToLower(txn.CurrencyCode)}
	}
	return c
}

// CancelSubscription cancels the Paddle subscription immediately.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: providerSubscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return fmt.Errorf("paddle cancel subscription: %w", err)
	}
	return nil
}

// NewProvider selects the processor named in cfg.Provider.
func NewProvider(cfg Config, stripeCfg StripeConfig, paddleCfg PaddleConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "stripe", "":
		return NewStripeProvider(stripeCfg)
	case "paddle":
		return NewPaddleProvider(paddleCfg)
	default:
		return nil, fmt.Errorf("unknown billing provider %q", cfg.Provider)
	}
}
