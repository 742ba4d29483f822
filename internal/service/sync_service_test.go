package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/icsync/internal/domain"
	"github.com/tazhate/icsync/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func feed(events ...string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//Test//Test//EN"}
	for _, uid := range events {
		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+uid,
			"DTSTAMP:20260810T090000Z",
			"DTSTART:20990901T100000Z",
			"DTEND:20990901T110000Z",
			"SUMMARY:Event "+uid,
			"END:VEVENT",
		)
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeUploader struct {
	stats domain.ReplaceStats
	err   error
	got   [][]domain.Event
}

func (u *fakeUploader) Replace(ctx context.Context, events []domain.Event) (domain.ReplaceStats, error) {
	u.got = append(u.got, events)
	return u.stats, u.err
}

type fakeJournal struct {
	runs []*domain.SyncRun
}

func (j *fakeJournal) RecordRun(run *domain.SyncRun) error {
	j.runs = append(j.runs, run)
	return nil
}

type fakeNotifier struct {
	runs []*domain.SyncRun
}

func (n *fakeNotifier) NotifyRun(run *domain.SyncRun) error {
	n.runs = append(n.runs, run)
	return nil
}

func TestRunCycleSuccess(t *testing.T) {
	fetcher := &fakeFetcher{data: feed("a@x", "b@x")}
	uploader := &fakeUploader{stats: domain.ReplaceStats{Uploaded: 2, Deleted: 1}}
	journal := &fakeJournal{}
	notifier := &fakeNotifier{}

	svc := NewSyncService(testLogger(), fetcher, uploader, false)
	svc.SetJournal(journal)
	svc.SetNotifier(notifier)

	run, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, run.CycleID)
	assert.Equal(t, domain.RunOK, run.Status)
	assert.Equal(t, 2, run.Events)
	assert.Equal(t, 2, run.Uploaded)
	assert.Equal(t, 1, run.Deleted)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	require.Len(t, uploader.got, 1)
	require.Len(t, uploader.got[0], 2)
	assert.Equal(t, "a@x", uploader.got[0][0].UID)

	require.Len(t, journal.runs, 1)
	require.Len(t, notifier.runs, 1)
	assert.Same(t, run, journal.runs[0])

	assert.Same(t, run, svc.LastRun())
}

func TestRunCycleFetchError(t *testing.T) {
	cause := domain.Wrap(domain.ErrNetwork, errors.New("connection refused"))
	fetcher := &fakeFetcher{err: cause}
	uploader := &fakeUploader{}
	journal := &fakeJournal{}

	svc := NewSyncService(testLogger(), fetcher, uploader, false)
	svc.SetJournal(journal)

	run, err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Empty(t, uploader.got, "nothing should be uploaded after a failed fetch")

	require.Len(t, journal.runs, 1)
	assert.True(t, journal.runs[0].Failed())
}

func TestRunCycleParseError(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("<html>login page</html>")}
	uploader := &fakeUploader{}

	svc := NewSyncService(testLogger(), fetcher, uploader, false)

	_, err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFormat)
	assert.Empty(t, uploader.got)
}

func TestRunCycleUploadError(t *testing.T) {
	fetcher := &fakeFetcher{data: feed("a@x", "b@x")}
	uploader := &fakeUploader{
		stats: domain.ReplaceStats{Uploaded: 1},
		err:   domain.Wrap(domain.ErrSync, errors.New("put event: 500")),
	}

	svc := NewSyncService(testLogger(), fetcher, uploader, false)

	run, err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSync)

	// The journal keeps the partial progress.
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, 1, run.Uploaded)
}

func TestRunCycleFutureOnly(t *testing.T) {
	past := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//Test//EN",
		"BEGIN:VEVENT",
		"UID:past@x",
		"DTSTAMP:20200101T090000Z",
		"DTSTART:20200106T100000Z",
		"DTEND:20200106T110000Z",
		"SUMMARY:Long over",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:future@x",
		"DTSTAMP:20200101T090000Z",
		"DTSTART:20990901T100000Z",
		"DTEND:20990901T110000Z",
		"SUMMARY:Far ahead",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"

	fetcher := &fakeFetcher{data: []byte(past)}
	uploader := &fakeUploader{}

	svc := NewSyncService(testLogger(), fetcher, uploader, true)

	run, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.Events)
	assert.Equal(t, 1, run.Skipped)
	require.Len(t, uploader.got, 1)
	require.Len(t, uploader.got[0], 1)
	assert.Equal(t, "future@x", uploader.got[0][0].UID)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.started <- struct{}{}
	<-f.release
	return []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//T//T//EN\r\nEND:VCALENDAR\r\n"), nil
}

func TestTryRunCycleWhileBusy(t *testing.T) {
	fetcher := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewSyncService(testLogger(), fetcher, &fakeUploader{}, false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunCycle(context.Background())
	}()

	<-fetcher.started
	assert.True(t, svc.Running())

	_, err := svc.TryRunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(fetcher.release)
	<-done

	assert.False(t, svc.Running())
	require.NotNil(t, svc.LastRun())
	assert.Equal(t, domain.RunOK, svc.LastRun().Status)
}

func TestLastRunBeforeFirstCycle(t *testing.T) {
	svc := NewSyncService(testLogger(), &fakeFetcher{}, &fakeUploader{}, false)
	assert.Nil(t, svc.LastRun())
	assert.False(t, svc.Running())
}
