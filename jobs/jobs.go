// Package jobs runs the periodic maintenance tasks of the service.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/spongetheory/marketplace/pkg/logger"
)

// Config holds the cron schedules and the per-run timeout.
type Config struct {
	RefillSchedule string        `env:"USAGE_REFILL_SCHEDULE" envDefault:"@hourly"`
	Timeout        time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
}

// Refiller resets usage counters whose period has ended.
type Refiller interface {
	RefillDue(ctx context.Context) (int64, error)
}

// Scheduler runs the background jobs. A run still in progress when the next
// one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration
}

// New registers the jobs. It fails when a schedule does not parse.
func New(cfg Config, refiller Refiller, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Noop()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log.With(logger.Component("jobs")),
		timeout: cfg.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Minute
	}

	if _, err := s.cron.AddFunc(cfg.RefillSchedule, s.job("usage_refill", func(ctx context.Context) error {
		_, err := refiller.RefillDue(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("schedule usage refill %q: %w", cfg.RefillSchedule, err)
	}
	return s, nil
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.ErrorContext(ctx, "job failed", logger.Event(name), logger.Error(err))
			return
		}
		s.log.DebugContext(ctx, "job finished", logger.Event(name), logger.Duration(time.Since(start)))
	}
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.InfoContext(ctx, "scheduler started", slog.Int("jobs", len(s.cron.Entries())))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// RunNow executes every job once, synchronously.
func (s *Scheduler) RunNow() {
	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
}
