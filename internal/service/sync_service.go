package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tazhate/icsync/internal/domain"
	"github.com/tazhate/icsync/internal/ics"
	"github.com/tazhate/icsync/pkg/logger"
)

// ErrCycleRunning is returned by TryRunCycle while another cycle holds
// the lock.
var ErrCycleRunning = errors.New("sync cycle already running")

// Fetcher downloads the raw remote feed.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Uploader makes the local calendar contain exactly the given events.
type Uploader interface {
	Replace(ctx context.Context, events []domain.Event) (domain.ReplaceStats, error)
}

// Journal persists finished cycles.
type Journal interface {
	RecordRun(run *domain.SyncRun) error
}

// Notifier reports finished cycles.
type Notifier interface {
	NotifyRun(run *domain.SyncRun) error
}

// SyncService runs fetch-parse-replace cycles. Cycles never overlap:
// scheduled and manually triggered runs are serialized on one lock.
type SyncService struct {
	log        *logger.Logger
	fetcher    Fetcher
	uploader   Uploader
	futureOnly bool

	journal  Journal
	notifier Notifier

	runMu sync.Mutex

	stateMu sync.RWMutex
	running bool
	lastRun *domain.SyncRun
}

// NewSyncService creates the service. Journal and notifier are optional
// and attached with the setters.
func NewSyncService(log *logger.Logger, fetcher Fetcher, uploader Uploader, futureOnly bool) *SyncService {
	return &SyncService{
		log:        log,
		fetcher:    fetcher,
		uploader:   uploader,
		futureOnly: futureOnly,
	}
}

// SetJournal attaches a run journal.
func (s *SyncService) SetJournal(j Journal) {
	s.journal = j
}

// SetNotifier attaches a notifier.
func (s *SyncService) SetNotifier(n Notifier) {
	s.notifier = n
}

// RunCycle performs one sync cycle, waiting for a running cycle to
// finish first.
func (s *SyncService) RunCycle(ctx context.Context) (*domain.SyncRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.cycle(ctx)
}

// TryRunCycle performs one sync cycle unless one is already running.
func (s *SyncService) TryRunCycle(ctx context.Context) (*domain.SyncRun, error) {
	if !s.runMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer s.runMu.Unlock()
	return s.cycle(ctx)
}

// Running reports whether a cycle is in flight.
func (s *SyncService) Running() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.running
}

// LastRun returns the most recently finished cycle, nil before the
// first one completes.
func (s *SyncService) LastRun() *domain.SyncRun {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastRun
}

func (s *SyncService) cycle(ctx context.Context) (*domain.SyncRun, error) {
	run := &domain.SyncRun{
		CycleID:   uuid.New().String(),
		StartedAt: time.Now(),
		Status:    domain.RunOK,
	}

	s.setRunning(true)
	defer s.setRunning(false)

	log := s.log.With(slog.String("cycle_id", run.CycleID))
	log.Info("sync cycle started")

	err := s.doSync(ctx, log, run)
	run.FinishedAt = time.Now()

	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		log.Error("sync cycle failed", logger.Err(err), slog.Duration("took", run.Duration()))
	} else {
		log.Info("sync cycle finished",
			slog.Int("events", run.Events),
			slog.Int("uploaded", run.Uploaded),
			slog.Int("deleted", run.Deleted),
			slog.Int("skipped", run.Skipped),
			slog.Duration("took", run.Duration()),
		)
	}

	s.finishRun(run)
	return run, err
}

func (s *SyncService) doSync(ctx context.Context, log *slog.Logger, run *domain.SyncRun) error {
	data, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	log.Debug("feed fetched", slog.Int("bytes", len(data)))

	events, err := ics.Parse(data)
	if err != nil {
		return err
	}
	run.Events = len(events)

	if s.futureOnly {
		events, run.Skipped = ics.FutureOnly(events, time.Now())
	}

	// Partial counts are kept on error so the journal shows how far the
	// cycle got.
	stats, err := s.uploader.Replace(ctx, events)
	run.Uploaded = stats.Uploaded
	run.Deleted = stats.Deleted
	return err
}

func (s *SyncService) setRunning(v bool) {
	s.stateMu.Lock()
	s.running = v
	s.stateMu.Unlock()
}

func (s *SyncService) finishRun(run *domain.SyncRun) {
	s.stateMu.Lock()
	s.lastRun = run
	s.stateMu.Unlock()

	if s.journal != nil {
		if err := s.journal.RecordRun(run); err != nil {
			s.log.Warn("record run in journal", logger.Err(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyRun(run); err != nil {
			s.log.Warn("send run notification", logger.Err(err))
		}
	}
}
