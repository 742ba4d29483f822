package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/icsync/internal/domain"
)

// Telegram pushes cycle outcomes to a chat. Failures are always sent,
// successes only when notifyOnSuccess is set.
type Telegram struct {
	api             *tgbotapi.BotAPI
	chatID          int64
	notifyOnSuccess bool
}

// NewTelegram creates the notifier. The constructor talks to the
// Telegram API once to validate the token.
func NewTelegram(token string, chatID int64, notifyOnSuccess bool) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Telegram{
		api:             api,
		chatID:          chatID,
		notifyOnSuccess: notifyOnSuccess,
	}, nil
}

// NotifyRun sends a message describing a finished cycle.
func (t *Telegram) NotifyRun(run *domain.SyncRun) error {
	if !run.Failed() && !t.notifyOnSuccess {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, formatRunMessage(run))
	msg.ParseMode = "HTML"
	_, err := t.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func formatRunMessage(run *domain.SyncRun) string {
	var b strings.Builder

	if run.Failed() {
		b.WriteString("❌ <b>Calendar sync failed</b>\n")
		fmt.Fprintf(&b, "<code>%s</code>\n", html.EscapeString(run.Error))
	} else {
		b.WriteString("✅ <b>Calendar sync finished</b>\n")
		fmt.Fprintf(&b, "%d events: %d uploaded, %d deleted", run.Events, run.Uploaded, run.Deleted)
		if run.Skipped > 0 {
			fmt.Fprintf(&b, ", %d past skipped", run.Skipped)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "took %s", run.Duration().Round(time.Millisecond))
	if run.CycleID != "" {
		fmt.Fprintf(&b, "\ncycle <code>%s</code>", run.CycleID)
	}
	return b.String()
}
