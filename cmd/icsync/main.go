package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/icsync/config"
	"github.com/tazhate/icsync/internal/clients/caldav"
	"github.com/tazhate/icsync/internal/ics"
	"github.com/tazhate/icsync/internal/notify"
	"github.com/tazhate/icsync/internal/scheduler"
	"github.com/tazhate/icsync/internal/service"
	"github.com/tazhate/icsync/internal/storage"
	"github.com/tazhate/icsync/internal/web"
	"github.com/tazhate/icsync/pkg/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Log.Level, cfg.Log.Format)

	fetcher := ics.NewFetcher(cfg.Remote.URL, cfg.Remote.Username, cfg.Remote.Password, cfg.Sync.HTTPTimeout)

	uploader, err := caldav.NewClient(
		cfg.Local.URL,
		cfg.Local.Username,
		cfg.Local.Password,
		cfg.Local.CalendarName,
		cfg.Local.CreateCalendar,
		cfg.Sync.HTTPTimeout,
	)
	if err != nil {
		log.Fatalf("Failed to init CalDAV client: %v", err)
	}

	syncSvc := service.NewSyncService(l, fetcher, uploader, cfg.Sync.FutureOnly)

	var journal *storage.Storage
	if cfg.Journal.Path != "" {
		journal, err = storage.New(cfg.Journal.Path, cfg.Journal.Keep)
		if err != nil {
			log.Fatalf("Failed to init journal: %v", err)
		}
		defer journal.Close()
		syncSvc.SetJournal(journal)
	}

	if cfg.Telegram.Token != "" {
		notifier, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.NotifyOnSuccess)
		if err != nil {
			log.Fatalf("Failed to init Telegram notifier: %v", err)
		}
		syncSvc.SetNotifier(notifier)
	}

	// Without a schedule the process syncs once and exits. The exit
	// code tells cron or a systemd timer whether the cycle worked.
	if cfg.OneShot() {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if _, err := syncSvc.RunCycle(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(cfg, l, syncSvc)

	var statusSrv *web.Server
	if cfg.Status.Listen != "" {
		statusSrv = web.NewServer(cfg, l, syncSvc)
		if journal != nil {
			statusSrv.SetJournal(journal)
		}
		statusSrv.SetScheduler(sched)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			l.Error("scheduler error", logger.Err(err))
		}
	}()

	if statusSrv != nil {
		go func() {
			if err := statusSrv.Start(); err != nil {
				l.Error("status server error", logger.Err(err))
			}
		}()
	}

	l.Info("icsync started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Info("shutting down")

	cancel()
	sched.Stop()

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			l.Error("error stopping status server", logger.Err(err))
		}
	}

	l.Info("icsync stopped")
}
