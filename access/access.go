package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/usage"
)

// Config holds the launch token signing settings.
type Config struct {
	Secret string        `env:"ACCESS_TOKEN_SECRET"`
	TTL    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"5m"`
	Issuer string        `env:"ACCESS_TOKEN_ISSUER" envDefault:"marketplace"`
}

// NonceStore remembers issued token ids until they are redeemed or expire.
type NonceStore interface {
	Put(ctx context.Context, nonce, userID string, ttl time.Duration) error
	// Consume deletes the nonce and returns the user it was issued to.
	// A missing or already consumed nonce returns ErrTokenReused.
	Consume(ctx context.Context, nonce string) (string, error)
}

// Entitlements resolves what a user may use right now.
type Entitlements interface {
	CanAccess(ctx context.Context, userID string, productID uuid.UUID) bool
}

// Products looks up the product a token is issued for.
type Products interface {
	Get(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

// Meter spends one call of the user's quota.
type Meter interface {
	Increment(ctx context.Context, userID string) (usage.Quota, error)
}

// Service issues and redeems launch tokens.
type Service struct {
	cfg      Config
	key      []byte
	nonces   NonceStore
	ents     Entitlements
	products Products
	meter    Meter
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the launch token service. It fails with ErrMissingSecret
// when no signing secret is configured.
func NewService(cfg Config, nonces NonceStore, ents Entitlements, products Products, meter Meter, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	s := &Service{
		cfg:      cfg,
		key:      []byte(cfg.Secret),
		nonces:   nonces,
		ents:     ents,
		products: products,
		meter:    meter,
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type claims struct {
	ProductID string `json:"product_id"`
	jwt.RegisteredClaims
}

// Launch is handed to the browser, which opens LaunchURL with the token.
type Launch struct {
	Token     string    `json:"token"`
	LaunchURL string    `json:"launch_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Grant is the result of redeeming a token.
type Grant struct {
	UserID    string      `json:"user_id"`
	ProductID uuid.UUID   `json:"product_id"`
	Quota     usage.Quota `json:"quota"`
}

// Issue signs a single-use launch token for productID.
func (s *Service) Issue(ctx context.Context, userID string, productID uuid.UUID) (Launch, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return Launch{}, err
	}
	if !s.ents.CanAccess(ctx, userID, productID) {
		return Launch{}, ErrNotEntitled
	}

	nonce, err := newNonce()
	if err != nil {
		return Launch{}, err
	}
	now := s.now().UTC()
	exp := now.Add(s.cfg.TTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ProductID: productID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return Launch{}, fmt.Errorf("sign launch token: %w", err)
	}
	if err := s.nonces.Put(ctx, nonce, userID, s.cfg.TTL); err != nil {
		return Launch{}, fmt.Errorf("store launch nonce: %w", err)
	}

	s.log.InfoContext(ctx, "launch token issued", logger.UserID(userID), logger.ProductID(productID))
	return Launch{Token: signed, LaunchURL: p.LaunchURL, ExpiresAt: exp}, nil
}

// Verify redeems a launch token. The token must be signed by us, unexpired,
// unused and, when productID is not uuid.Nil, issued for that product. The
// user must still be entitled, and one call is taken from their quota.
func (s *Service) Verify(ctx context.Context, raw string, productID uuid.UUID) (Grant, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Grant{}, errors.Join(ErrTokenInvalid, err)
	}

	tokenProduct, err := uuid.Parse(c.ProductID)
	if err != nil || c.Subject == "" || c.ID == "" {
		return Grant{}, ErrTokenInvalid
	}
	if productID != uuid.Nil && productID != tokenProduct {
		return Grant{}, ErrProductMismatch
	}

	owner, err := s.nonces.Consume(ctx, c.ID)
	if err != nil {
		return Grant{}, err
	}
	if owner != c.Subject {
		return Grant{}, ErrTokenInvalid
	}

	if !s.ents.CanAccess(ctx, c.Subject, tokenProduct) {
		return Grant{}, ErrNotEntitled
	}
	q, err := s.meter.Increment(ctx, c.Subject)
	return Grant{UserID: c.Subject, ProductID: tokenProduct, Quota: q}, err
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
