package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/icsync/config"
	"github.com/tazhate/icsync/internal/service"
	"github.com/tazhate/icsync/pkg/logger"
)

// Scheduler triggers sync cycles on the configured interval or cron
// expression. The first cycle runs immediately on Start, the schedule
// only controls the runs after it.
type Scheduler struct {
	cron *cron.Cron
	cfg  *config.Config
	log  *logger.Logger
	sync *service.SyncService
}

func New(cfg *config.Config, log *logger.Logger, syncSvc *service.SyncService) *Scheduler {
	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(logger.NewCronLogger(log))),
	)

	return &Scheduler{
		cron: c,
		cfg:  cfg,
		log:  log,
		sync: syncSvc,
	}
}

// Start registers the schedule, runs the first cycle and blocks until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	job := cron.FuncJob(func() { s.runCycle(ctx) })

	switch {
	case s.cfg.Sync.Cron != "":
		if _, err := s.cron.AddJob(s.cfg.Sync.Cron, job); err != nil {
			return fmt.Errorf("add cron job: %w", err)
		}
		s.log.Info("scheduler started", slog.String("cron", s.cfg.Sync.Cron))
	case s.cfg.Interval > 0:
		s.cron.Schedule(cron.Every(s.cfg.Interval), job)
		s.log.Info("scheduler started", slog.Duration("every", s.cfg.Interval))
	default:
		return fmt.Errorf("no schedule configured")
	}

	s.runCycle(ctx)

	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// NextRun returns when the next cycle is due, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Failures are logged and journaled by the service, the schedule
	// keeps ticking.
	_, _ = s.sync.RunCycle(ctx)
}
