package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spongetheory/marketplace/pkg/logger"
)

// Recorder receives usage metrics.
type Recorder interface {
	UsageIncremented()
	QuotaRejected()
	CountersRefilled(n int64)
}

type noopRecorder struct{}

func (noopRecorder) UsageIncremented()      {}
func (noopRecorder) QuotaRejected()         {}
func (noopRecorder) CountersRefilled(int64) {}

// Service meters calls against usage counters.
type Service struct {
	store   Store
	metrics Recorder
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the metrics sink. Defaults to a no-op.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a usage service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, metrics: noopRecorder{}, log: logger.Noop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment spends one call. A user without a counter has no allowance and
// gets ErrQuotaExceeded.
func (s *Service) Increment(ctx context.Context, userID string) (Quota, error) {
	c, err := s.store.IncrementCounter(ctx, userID, s.now().UTC())
	switch {
	case err == nil:
		s.metrics.UsageIncremented()
		return c.Quota(), nil
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrCounterNotFound):
		s.metrics.QuotaRejected()
		q, _ := s.Get(ctx, userID)
		s.log.InfoContext(ctx, "quota exceeded", logger.UserID(userID), slog.Int64("used", q.Used), slog.Int64("max", q.Max))
		return q, ErrQuotaExceeded
	default:
		return Quota{}, err
	}
}

// Get returns the current quota. A missing counter reads as {0, 0}.
func (s *Service) Get(ctx context.Context, userID string) (Quota, error) {
	c, err := s.store.GetCounter(ctx, userID)
	if errors.Is(err, ErrCounterNotFound) {
		return Quota{}, nil
	}
	if err != nil {
		return Quota{}, err
	}
	return c.Quota(), nil
}

// RefillDue resets every refillable counter whose period began a calendar
// month or more ago. The maximum is taken again from the user's current
// tier, so a changed tier allowance reaches its holders at the next refill.
func (s *Service) RefillDue(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.store.RefillCounters(ctx, now.AddDate(0, -1, 0), now)
	if err != nil {
		return 0, err
	}
	s.metrics.CountersRefilled(n)
	if n > 0 {
		s.log.InfoContext(ctx, "usage counters refilled", slog.Int64("count", n))
	}
	return n, nil
}
