package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tazhate/icsync/internal/domain"
)

func TestFormatRunMessageSuccess(t *testing.T) {
	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	run := &domain.SyncRun{
		CycleID:    "c1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Status:     domain.RunOK,
		Events:     12,
		Uploaded:   12,
		Deleted:    3,
		Skipped:    4,
	}

	msg := formatRunMessage(run)
	assert.Contains(t, msg, "✅")
	assert.Contains(t, msg, "12 events: 12 uploaded, 3 deleted")
	assert.Contains(t, msg, "4 past skipped")
	assert.Contains(t, msg, "took 2s")
	assert.Contains(t, msg, "cycle <code>c1</code>")
}

func TestFormatRunMessageSuccessNoSkips(t *testing.T) {
	run := &domain.SyncRun{Status: domain.RunOK, Events: 1, Uploaded: 1}
	assert.NotContains(t, formatRunMessage(run), "skipped")
}

func TestFormatRunMessageFailure(t *testing.T) {
	run := &domain.SyncRun{
		Status: domain.RunFailed,
		Error:  `calendar "Family <shared>" not found`,
	}

	msg := formatRunMessage(run)
	assert.Contains(t, msg, "❌")
	// Error text is HTML-escaped so Telegram accepts the message.
	assert.Contains(t, msg, "&lt;shared&gt;")
	assert.NotContains(t, msg, "<shared>")
}

func TestNotifyRunSkipsQuietSuccess(t *testing.T) {
	tg := &Telegram{notifyOnSuccess: false}
	run := &domain.SyncRun{Status: domain.RunOK}

	// Would panic on the nil API if it tried to send.
	assert.NoError(t, tg.NotifyRun(run))
}
