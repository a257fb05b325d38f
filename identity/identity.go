package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Config configures the OIDC provider and who counts as an admin.
type Config struct {
	IssuerURL    string   `env:"OIDC_ISSUER_URL"`
	Audience     string   `env:"OIDC_AUDIENCE"`
	RoleClaim    string   `env:"OIDC_ROLE_CLAIM" envDefault:"role"`
	AdminRole    string   `env:"OIDC_ADMIN_ROLE" envDefault:"admin"`
	AdminUserIDs []string `env:"ADMIN_USER_IDS" envSeparator:","`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Admin  bool   `json:"admin"`
}

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Principal, error)
}

// OIDCVerifier checks ID tokens issued by the configured provider.
type OIDCVerifier struct {
	cfg      Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider's keys from its issuer URL.
func NewOIDCVerifier(ctx context.Context, cfg Config) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("identity: issuer URL is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("identity: discover provider: %w", err)
	}
	return NewOIDCVerifierWith(provider.Verifier(OIDCConfig(cfg)), cfg), nil
}

// NewOIDCVerifierWith wraps an existing token verifier, such as one built
// from a static key set.
func NewOIDCVerifierWith(v *oidc.IDTokenVerifier, cfg Config) *OIDCVerifier {
	return &OIDCVerifier{cfg: cfg, verifier: v}
}

// OIDCConfig checks the audience only when one is configured.
func OIDCConfig(cfg Config) *oidc.Config {
	return &oidc.Config{ClientID: cfg.Audience, SkipClientIDCheck: cfg.Audience == ""}
}

// Verify checks the token signature, issuer, audience and expiry.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	if rawToken == "" {
		return Principal{}, ErrMissingToken
	}
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	p := Principal{UserID: tok.Subject}
	if p.UserID == "" {
		return Principal{}, ErrInvalidToken
	}
	p.Email, _ = claims["email"].(string)
	p.Admin = slices.Contains(v.cfg.AdminUserIDs, p.UserID) || hasRole(claims[v.cfg.RoleClaim], v.cfg.AdminRole)
	return p, nil
}

// hasRole accepts a single role string or a list of roles.
func hasRole(claim any, role string) bool {
	if role == "" {
		return false
	}
	switch c := claim.(type) {
	case string:
		return c == role
	case []any:
		for _, r := range c {
			if s, ok := r.(string); ok && s == role {
				return true
			}
		}
	}
	return false
}

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// UserID is the audit actor extractor.
func UserID(ctx context.Context) (string, bool) {
	p, ok := FromContext(ctx)
	return p.UserID, ok && p.UserID != ""
}

// LoggerExtractor plugs the caller into logger.WithContextExtractors.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := UserID(ctx); ok {
			return slog.String("user_id", id), true
		}
		return slog.Attr{}, false
	}
}
