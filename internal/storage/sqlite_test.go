package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/icsync/internal/domain"
)

func newTestStorage(t *testing.T, keep int) *Storage {
	t.Helper()
	s, err := New(":memory:", keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(cycleID string, status domain.RunStatus) *domain.SyncRun {
	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return &domain.SyncRun{
		CycleID:    cycleID,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Status:     status,
		Events:     10,
		Uploaded:   10,
		Deleted:    2,
		Skipped:    1,
	}
}

func TestRecordAndLastRun(t *testing.T) {
	s := newTestStorage(t, 0)

	first := testRun("cycle-1", domain.RunOK)
	require.NoError(t, s.RecordRun(first))
	assert.NotZero(t, first.ID)

	second := testRun("cycle-2", domain.RunFailed)
	second.Error = "remote calendar unreachable: get http://x: 503"
	require.NoError(t, s.RecordRun(second))

	last, err := s.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)

	assert.Equal(t, "cycle-2", last.CycleID)
	assert.Equal(t, domain.RunFailed, last.Status)
	assert.Equal(t, second.Error, last.Error)
	assert.Equal(t, 10, last.Events)
	assert.Equal(t, 2, last.Deleted)
	assert.WithinDuration(t, second.StartedAt, last.StartedAt, time.Second)
	assert.WithinDuration(t, second.FinishedAt, last.FinishedAt, time.Second)
}

func TestLastRunEmpty(t *testing.T) {
	s := newTestStorage(t, 0)

	last, err := s.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRecentRuns(t *testing.T) {
	s := newTestStorage(t, 0)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordRun(testRun(id, domain.RunOK)))
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].CycleID)
	assert.Equal(t, "b", runs[1].CycleID)
}

func TestRecordRunPrunes(t *testing.T) {
	s := newTestStorage(t, 3)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.RecordRun(testRun(id, domain.RunOK)))
	}

	runs, err := s.RecentRuns(100)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "e", runs[0].CycleID)
	assert.Equal(t, "c", runs[2].CycleID)
}
