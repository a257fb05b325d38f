package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/catalog"
)

// ListProducts returns every product, oldest first.
func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	defer s.lock(ctx)()
	out := make([]catalog.Product, 0, len(s.d.products))
	for _, p := range s.d.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

// GetProduct returns a product or catalog.ErrProductNotFound.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	defer s.lock(ctx)()
	p, ok := s.d.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

// CreateProduct stores p.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	defer s.lock(ctx)()
	s.d.products[p.ID] = p
	return nil
}

// UpdateProduct replaces an existing product.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	defer s.lock(ctx)()
	if _, ok := s.d.products[p.ID]; !ok {
		return catalog.ErrProductNotFound
	}
	s.d.products[p.ID] = p
	return nil
}

// DeleteProduct fails with catalog.ErrProductInUse while a live tier includes the product.
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	defer s.lock(ctx)()
	if _, ok := s.d.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	for _, t := range s.d.tiers {
		if t.DeletedAt == nil && t.Includes(id) {
			return catalog.ErrProductInUse
		}
	}
	delete(s.d.products, id)
	return nil
}

// MissingProducts returns the ids that name no product.
func (s *Store) MissingProducts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	defer s.lock(ctx)()
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := s.d.products[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
