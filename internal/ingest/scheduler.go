package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxreply/internal/logging"
)

// Passer runs one ingest pass. Ingestor satisfies it.
type Passer interface {
	Ingest(ctx context.Context) (Stats, error)
}

// Scheduler triggers ingest passes on push notifications and on a fallback
// poll interval. Notifications arriving during a pass collapse into one
// follow-up pass.
type Scheduler struct {
	passer   Passer
	interval time.Duration
	wake     chan struct{}
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval disables polling.
func NewScheduler(passer Passer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		passer:   passer,
		interval: interval,
		wake:     make(chan struct{}, 1),
		logger:   logging.WithOperation(logger, "ingest.scheduler"),
	}
}

// Notify requests a pass. It never blocks.
func (s *Scheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run performs an initial pass, then one per notification or tick, until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-tick:
		}
		s.pass(ctx)
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	if _, err := s.passer.Ingest(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "ingest pass failed", logging.Err(err))
	}
}
