package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/tier"
)

const tierSelect = `
	SELECT t.id, t.name, t.description, t.price_amount, t.price_currency, t.billing_period,
		t.tokens, t.is_free, t.popular, t.external_price_ref, t.created_at, t.updated_at,
		COALESCE((SELECT array_agg(tp.product_id ORDER BY tp.product_id)
			FROM tier_products tp WHERE tp.tier_id = t.id), '{}') AS product_ids
	FROM tiers t
	WHERE t.deleted_at IS NULL`

func scanTier(row pgx.Row) (tier.Tier, error) {
	var t tier.Tier
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Price.Amount, &t.Price.Currency, &t.BillingPeriod,
		&t.Tokens, &t.IsFree, &t.Popular, &t.PriceRef, &t.CreatedAt, &t.UpdatedAt, &t.ProductIDs)
	if pg.IsNotFoundError(err) {
		return tier.Tier{}, tier.ErrTierNotFound
	}
	return t, err
}

// ListTiers returns the live tiers, cheapest first.
func (s *Store) ListTiers(ctx context.Context) ([]tier.Tier, error) {
	rows, err := s.db(ctx).Query(ctx, tierSelect+` ORDER BY t.price_amount, t.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	out := []tier.Tier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTier returns a live tier or tier.ErrTierNotFound.
func (s *Store) GetTier(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	return scanTier(s.db(ctx).QueryRow(ctx, tierSelect+` AND t.id = $1`, id))
}

// GetTierForUpdate loads the tier and locks its row until the transaction ends.
func (s *Store) GetTierForUpdate(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	return s.lockedTier(ctx, id, "FOR UPDATE")
}

// GetTierForShare loads the tier and blocks concurrent updates and deletes of it.
func (s *Store) GetTierForShare(ctx context.Context, id uuid.UUID) (tier.Tier, error) {
	return s.lockedTier(ctx, id, "FOR SHARE")
}

// lockedTier locks the row first; the aggregate in tierSelect cannot carry a
// locking clause.
func (s *Store) lockedTier(ctx context.Context, id uuid.UUID, mode string) (tier.Tier, error) {
	var one int
	err := s.db(ctx).QueryRow(ctx, `SELECT 1 FROM tiers WHERE id = $1 AND deleted_at IS NULL `+mode, id).Scan(&one)
	if pg.IsNotFoundError(err) {
		return tier.Tier{}, tier.ErrTierNotFound
	}
	if err != nil {
		return tier.Tier{}, fmt.Errorf("lock tier: %w", err)
	}
	return s.GetTier(ctx, id)
}

// GetTierByPriceRef returns the live tier sold under ref.
func (s *Store) GetTierByPriceRef(ctx context.Context, ref string) (tier.Tier, error) {
	return scanTier(s.db(ctx).QueryRow(ctx, tierSelect+` AND t.external_price_ref = $1`, ref))
}

// GetFreeTier returns the live free tier.
func (s *Store) GetFreeTier(ctx context.Context) (tier.Tier, error) {
	return scanTier(s.db(ctx).QueryRow(ctx, tierSelect+` AND t.is_free`))
}

// CreateTier stores t and its products. Unique index violations map to the
// matching tier sentinel.
func (s *Store) CreateTier(ctx context.Context, t tier.Tier) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.db(ctx).Exec(ctx, `
			INSERT INTO tiers (id, name, description, price_amount, price_currency, billing_period,
				tokens, is_free, popular, external_price_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			t.ID, t.Name, t.Description, t.Price.Amount, t.Price.Currency, t.BillingPeriod,
			t.Tokens, t.IsFree, t.Popular, t.PriceRef, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return tierError("create tier", err)
		}
		return s.replaceTierProducts(ctx, t.ID, t.ProductIDs)
	})
}

// UpdateTier replaces a live tier and its product set.
func (s *Store) UpdateTier(ctx context.Context, t tier.Tier) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		tag, err := s.db(ctx).Exec(ctx, `
			UPDATE tiers
			SET name = $2, description = $3, price_amount = $4, price_currency = $5, billing_period = $6,
				tokens = $7, is_free = $8, popular = $9, external_price_ref = $10, updated_at = $11
			WHERE id = $1 AND deleted_at IS NULL`,
			t.ID, t.Name, t.Description, t.Price.Amount, t.Price.Currency, t.BillingPeriod,
			t.Tokens, t.IsFree, t.Popular, t.PriceRef, t.UpdatedAt)
		if err != nil {
			return tierError("update tier", err)
		}
		if tag.RowsAffected() == 0 {
			return tier.ErrTierNotFound
		}
		return s.replaceTierProducts(ctx, t.ID, t.ProductIDs)
	})
}

func (s *Store) replaceTierProducts(ctx context.Context, tierID uuid.UUID, productIDs []uuid.UUID) error {
	if _, err := s.db(ctx).Exec(ctx, `DELETE FROM tier_products WHERE tier_id = $1`, tierID); err != nil {
		return fmt.Errorf("clear tier products: %w", err)
	}
	if len(productIDs) == 0 {
		return nil
	}
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO tier_products (tier_id, product_id)
		SELECT $1, p FROM unnest($2::uuid[]) AS p
		ON CONFLICT DO NOTHING`, tierID, productIDs)
	if err != nil {
		return tierError("set tier products", err)
	}
	return nil
}

// ClearPopular unmarks every popular tier except the given one.
func (s *Store) ClearPopular(ctx context.Context, except uuid.UUID) error {
	_, err := s.db(ctx).Exec(ctx, `UPDATE tiers SET popular = false WHERE popular AND id <> $1`, except)
	if err != nil {
		return fmt.Errorf("clear popular: %w", err)
	}
	return nil
}

// SoftDeleteTier hides the tier and releases its products and popular flag.
func (s *Store) SoftDeleteTier(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		tag, err := s.db(ctx).Exec(ctx, `
			UPDATE tiers SET deleted_at = $2, popular = false, updated_at = $2
			WHERE id = $1 AND deleted_at IS NULL`, id, at)
		if err != nil {
			return fmt.Errorf("delete tier: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return tier.ErrTierNotFound
		}
		_, err = s.db(ctx).Exec(ctx, `DELETE FROM tier_products WHERE tier_id = $1`, id)
		return err
	})
}

// CountActiveSubscriptions counts the active rows on tierID.
func (s *Store) CountActiveSubscriptions(ctx context.Context, tierID uuid.UUID) (int, error) {
	var n int
	err := s.db(ctx).QueryRow(ctx,
		`SELECT count(*) FROM subscriptions WHERE tier_id = $1 AND status = 'active'`, tierID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

func tierError(op string, err error) error {
	switch {
	case pg.IsDuplicateKeyError(err):
		switch pg.ConstraintName(err) {
		case "tiers_single_free":
			return tier.ErrFreeTierExists
		case "tiers_price_ref":
			return tier.ErrPriceRefTaken
		case "tiers_single_popular":
			return tier.ErrPopularConflict
		}
	case pg.IsForeignKeyViolationError(err):
		return tier.ErrInvalidReference
	case pg.IsCheckViolationError(err):
		return fmt.Errorf("%w: %s", tier.ErrInvalidTier, pg.ConstraintName(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
