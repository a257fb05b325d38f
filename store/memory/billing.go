package memory

import (
	"context"
	"slices"

	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/pkg/audit"
)

// LockSession only checks that the caller is inside a transaction, which
// already serialises every writer.
func (s *Store) LockSession(ctx context.Context, _ string) error {
	if !s.inTx(ctx) {
		return errNotInTx
	}
	return nil
}

// GetPaymentBySession returns the ledger entry or billing.ErrPaymentNotFound.
func (s *Store) GetPaymentBySession(ctx context.Context, sessionID string) (billing.Payment, error) {
	defer s.lock(ctx)()
	p, ok := s.d.payments[sessionID]
	if !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

// SavePayment upserts by session.
func (s *Store) SavePayment(ctx context.Context, p billing.Payment) error {
	defer s.lock(ctx)()
	s.d.payments[p.SessionID] = p
	return nil
}

// ListPayments returns the user's payments, newest first.
func (s *Store) ListPayments(ctx context.Context, userID string) ([]billing.Payment, error) {
	defer s.lock(ctx)()
	var out []billing.Payment
	for _, p := range s.d.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b billing.Payment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Store appends audit events.
func (s *Store) Store(ctx context.Context, events ...audit.Event) error {
	defer s.lock(ctx)()
	s.d.events = append(s.d.events, events...)
	return nil
}

// AuditEvents returns a copy of every stored audit event.
func (s *Store) AuditEvents() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.d.events)
}
