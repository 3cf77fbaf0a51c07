package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultOverdueSchedule = "@every 1m"

// OverdueScanner fires task_overdue rules for tasks whose due date has passed.
type OverdueScanner interface {
	ScanOverdue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the overdue re-evaluation pass on a cron schedule. Overdue state itself
// is evaluated lazily at read time; the pass only exists to fire rules.
type Scheduler struct {
	logger  *slog.Logger
	scanner OverdueScanner
	spec    string
	cron    *cron.Cron
}

func NewScheduler(logger *slog.Logger, scanner OverdueScanner, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultOverdueSchedule
	}

	_, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", spec, err)
	}

	return &Scheduler{
		logger:  logger.With("module", "overdue_scheduler"),
		scanner: scanner,
		spec:    spec,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.spec, func() {
		s.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add overdue job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Overdue scheduler started", "schedule", s.spec)

	return nil
}

// Run performs one pass.
func (s *Scheduler) Run(ctx context.Context) {
	fired, err := s.scanner.ScanOverdue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Overdue scan failed", "error", err)

		return
	}

	if fired > 0 {
		s.logger.InfoContext(ctx, "Overdue tasks found", "count", fired)
	}
}

// Stop waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}
