package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/pg"
)

const productColumns = `id, name, description, cover_image, demo_video_link, launch_url, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CoverImage, &p.DemoVideoLink, &p.LaunchURL, &p.CreatedAt, &p.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, err
}

// ListProducts returns every product, oldest first.
func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct returns a product or catalog.ErrProductNotFound.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	return scanProduct(s.db(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// CreateProduct stores p.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.CoverImage, p.DemoVideoLink, p.LaunchURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct replaces an existing product.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, cover_image = $4, demo_video_link = $5, launch_url = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.CoverImage, p.DemoVideoLink, p.LaunchURL, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// DeleteProduct relies on the tier_products foreign key to refuse products a live tier includes.
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if pg.IsForeignKeyViolationError(err) {
		return catalog.ErrProductInUse
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// MissingProducts returns the ids that name no product.
func (s *Store) MissingProducts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT want.id
		FROM unnest($1::uuid[]) AS want(id)
		WHERE NOT EXISTS (SELECT 1 FROM products p WHERE p.id = want.id)`, ids)
	if err != nil {
		return nil, fmt.Errorf("check products: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
