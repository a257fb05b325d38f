package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/logger"
)

// Auditor records subscription changes in the audit trail.
type Auditor interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
}

// Service owns the subscription ledger and keeps each user's usage counter in
// step with their active tier.
type Service struct {
	store    Store
	tiers    TierLookup
	counters Counters
	tx       Transactor
	audit    Auditor
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor records activations and deactivations in the audit trail.
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

// NewService creates a subscription service.
func NewService(store Store, tiers TierLookup, counters Counters, tx Transactor, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tiers:    tiers,
		counters: counters,
		tx:       tx,
		log:      logger.Noop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type activateOptions struct {
	providerSubscriptionID string
}

// ActivateOption tunes a single activation.
type ActivateOption func(*activateOptions)

// WithProviderSubscription links the new subscription to the processor's recurring subscription.
func WithProviderSubscription(id string) ActivateOption {
	return func(o *activateOptions) { o.providerSubscriptionID = id }
}

// GetActive returns the subscription currently granting access, or
// ErrNoActiveSubscription. A row past its end date does not count.
func (s *Service) GetActive(ctx context.Context, userID string) (Subscription, error) {
	if userID == "" {
		return Subscription{}, ErrUserRequired
	}
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return Subscription{}, ErrNoActiveSubscription
	}
	if err != nil {
		return Subscription{}, err
	}
	if !sub.ActiveAt(s.now()) {
		return Subscription{}, ErrNoActiveSubscription
	}
	return sub, nil
}

// History lists every subscription the user has held, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Subscription, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	return s.store.ListSubscriptions(ctx, userID)
}

// SetActive makes tierID the user's only active tier. Within one transaction
// it closes the previous subscription, opens the new one and resizes the
// usage counter to the tier's allowance with zero usage. Requesting the tier
// that is already active changes nothing.
func (s *Service) SetActive(ctx context.Context, userID string, tierID uuid.UUID, opts ...ActivateOption) (Activation, error) {
	if userID == "" {
		return Activation{}, ErrUserRequired
	}
	var o activateOptions
	for _, opt := range opts {
		opt(&o)
	}

	var res Activation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, userID); err != nil {
			return err
		}

		t, err := s.tiers.GetTierForShare(ctx, tierID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		prev, err := s.store.GetActiveSubscription(ctx, userID)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
		case err != nil:
			return err
		case prev.TierID == t.ID && prev.ActiveAt(now):
			res = Activation{Current: prev}
			if o.providerSubscriptionID == "" || o.providerSubscriptionID == prev.ProviderSubscriptionID {
				return nil
			}
			// Same tier bought again: keep the quota, move the processor link.
			old := prev
			if err := s.store.SetProviderSubscription(ctx, prev.ID, o.providerSubscriptionID, now); err != nil {
				return err
			}
			res.Current.ProviderSubscriptionID = o.providerSubscriptionID
			res.Current.UpdatedAt = now
			res.Superseded = &old
			return nil
		default:
			if err := s.store.CloseSubscription(ctx, prev.ID, now); err != nil {
				return err
			}
			prev.Status, prev.EndDate, prev.UpdatedAt = StatusInactive, &now, now
			res.Superseded = &prev
		}

		next := Subscription{
			ID:                     uuid.New(),
			UserID:                 userID,
			TierID:                 t.ID,
			Status:                 StatusActive,
			StartDate:              now,
			ProviderSubscriptionID: o.providerSubscriptionID,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.store.InsertSubscription(ctx, next); err != nil {
			return err
		}
		if err := s.counters.ResetCounter(ctx, userID, t.Tokens, t.BillingPeriod.Refills(), now); err != nil {
			return err
		}

		res.Current = next
		res.Changed = true
		return nil
	})
	if err != nil {
		return Activation{}, err
	}

	if res.Changed {
		s.log.InfoContext(ctx, "subscription activated",
			logger.UserID(userID), logger.TierID(tierID), slog.String("subscription_id", res.Current.ID.String()))
		s.record(ctx, "subscription.activate", res.Current)
	}
	return res, nil
}

// Deactivate closes the user's active subscription and drops the usage
// allowance to zero. It returns ErrNoActiveSubscription when there is nothing
// to close.
func (s *Service) Deactivate(ctx context.Context, userID string) (Subscription, error) {
	if userID == "" {
		return Subscription{}, ErrUserRequired
	}
	var closed Subscription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, userID); err != nil {
			return err
		}
		sub, err := s.store.GetActiveSubscription(ctx, userID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		closed, err = s.close(ctx, sub)
		return err
	})
	if err != nil {
		return Subscription{}, err
	}

	s.log.InfoContext(ctx, "subscription deactivated", logger.UserID(userID), slog.String("subscription_id", closed.ID.String()))
	s.record(ctx, "subscription.deactivate", closed)
	return closed, nil
}

// DeactivateByProviderSubscription closes the active subscription backed by
// the given processor subscription. Superseded rows are already inactive,
// so a late cancellation for them is a no-op returning ErrNoActiveSubscription.
func (s *Service) DeactivateByProviderSubscription(ctx context.Context, providerSubscriptionID string) (Subscription, error) {
	if providerSubscriptionID == "" {
		return Subscription{}, ErrNoActiveSubscription
	}
	sub, err := s.store.FindActiveByProviderSubscription(ctx, providerSubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return Subscription{}, ErrNoActiveSubscription
	}
	if err != nil {
		return Subscription{}, err
	}

	var closed Subscription
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, sub.UserID); err != nil {
			return err
		}
		// Re-read under the lock, the user may have switched tiers meanwhile.
		current, err := s.store.GetActiveSubscription(ctx, sub.UserID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		if current.ProviderSubscriptionID != providerSubscriptionID {
			return ErrNoActiveSubscription
		}
		closed, err = s.close(ctx, current)
		return err
	})
	if err != nil {
		return Subscription{}, err
	}

	s.log.InfoContext(ctx, "subscription cancelled by provider", logger.UserID(closed.UserID), slog.String("subscription_id", closed.ID.String()))
	s.record(ctx, "subscription.provider_cancel", closed)
	return closed, nil
}

func (s *Service) close(ctx context.Context, sub Subscription) (Subscription, error) {
	now := s.now().UTC()
	if err := s.store.CloseSubscription(ctx, sub.ID, now); err != nil {
		return Subscription{}, err
	}
	if err := s.counters.ResizeCounter(ctx, sub.UserID, 0, now); err != nil {
		return Subscription{}, err
	}
	sub.Status, sub.EndDate, sub.UpdatedAt = StatusInactive, &now, now
	return sub, nil
}

func (s *Service) record(ctx context.Context, action string, sub Subscription) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, action,
		audit.WithResource("subscription", sub.ID.String()),
		audit.WithMetadata("user_id", sub.UserID),
		audit.WithMetadata("tier_id", sub.TierID.String()),
	)
	if err != nil {
		s.log.WarnContext(ctx, "audit write failed", logger.Error(err), logger.Event(action))
	}
}
