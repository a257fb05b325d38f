package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/pg"
)

const paymentColumns = `id, user_id, tier_id, provider, session_id, COALESCE(provider_subscription_id, ''),
	amount, currency, status, created_at, updated_at`

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var p billing.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.TierID, &p.Provider, &p.SessionID, &p.ProviderSubscriptionID,
		&p.Amount.Amount, &p.Amount.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, err
}

// LockSession takes a transaction-scoped advisory lock on the checkout session.
func (s *Store) LockSession(ctx context.Context, sessionID string) error {
	return s.advisoryLock(ctx, "checkout:"+sessionID)
}

// GetPaymentBySession returns the ledger entry or billing.ErrPaymentNotFound.
func (s *Store) GetPaymentBySession(ctx context.Context, sessionID string) (billing.Payment, error) {
	return scanPayment(s.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE session_id = $1`, sessionID))
}

// SavePayment upserts by session, so a retried session overwrites its failed entry.
func (s *Store) SavePayment(ctx context.Context, p billing.Payment) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO payments (id, user_id, tier_id, provider, session_id, provider_subscription_id,
			amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE
		SET tier_id = EXCLUDED.tier_id, provider_subscription_id = EXCLUDED.provider_subscription_id,
			amount = EXCLUDED.amount, currency = EXCLUDED.currency, status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserID, p.TierID, p.Provider, p.SessionID, p.ProviderSubscriptionID,
		p.Amount.Amount, p.Amount.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

// ListPayments returns the user's payments, newest first.
func (s *Store) ListPayments(ctx context.Context, userID string) ([]billing.Payment, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Store appends audit events in one batch.
func (s *Store) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		var meta []byte
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode audit metadata: %w", err)
			}
			meta = b
		}
		batch.Queue(`
			INSERT INTO audit_events (id, actor_id, action, resource, resource_id, result, error,
				request_id, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.ActorID, e.Action, e.Resource, e.ResourceID, e.Result, e.Error,
			e.RequestID, meta, e.CreatedAt)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	var br pgx.BatchResults
	if tx, ok := s.db(ctx).(pgx.Tx); ok {
		br = tx.SendBatch(ctx, batch)
	} else {
		br = s.pool.SendBatch(ctx, batch)
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("store audit events: %w", err)
	}
	return nil
}
