package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/validate"
)

// Auditor is the subset of *audit.Logger used by domain services.
type Auditor interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
}

// Service manages products.
type Service struct {
	store    Store
	validate *validate.Validator
	audit    Auditor
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor records product changes in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a product service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: validate.New(),
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every product.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

// Get returns a product or ErrProductNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.store.GetProduct(ctx, id)
}

// Missing returns the ids that do not name an existing product.
func (s *Service) Missing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.MissingProducts(ctx, ids)
}

// Create validates in and stores a new product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return Product{}, errors.Join(ErrInvalidProduct, err)
	}

	now := s.now().UTC()
	p := Product{
		ID:            uuid.New(),
		Name:          in.Name,
		Description:   in.Description,
		CoverImage:    in.CoverImage,
		DemoVideoLink: in.DemoVideoLink,
		LaunchURL:     in.LaunchURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}

	s.record(ctx, "product.create", p.ID)
	return p, nil
}

// Update applies patch and validates the result.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (Product, error) {
	if err := s.validate.Struct(patch); err != nil {
		return Product{}, errors.Join(ErrInvalidProduct, err)
	}

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	patch.apply(&p)
	if p.LaunchURL == "" {
		return Product{}, errors.Join(ErrInvalidProduct, validate.FieldErrors{"launch_url": {"is required"}})
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return Product{}, err
	}

	s.record(ctx, "product.update", p.ID)
	return p, nil
}

// Delete removes a product. It fails with ErrProductInUse while a live tier
// includes it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "product.delete", id)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, action, audit.WithResource("product", id.String())); err != nil {
		s.log.WarnContext(ctx, "audit write failed", logger.Error(err), logger.Event(action))
	}
}
