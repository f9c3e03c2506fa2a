package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gibster/internal/config"
	"gibster/internal/domain"
	"gibster/internal/events"
	"gibster/internal/orchestrator"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier sends one message per finished sync run.
type TelegramNotifier struct {
	sender domain.TelegramSender
	chatID int64
	logger *zerolog.Logger

	mu       sync.Mutex
	lastRun  time.Time
	notified bool
}

func NewTelegramNotifier(sender domain.TelegramSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// Subscribe attaches the notifier to state changes on bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSyncStateChanged, n.handle)
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	var snap orchestrator.Snapshot
	if err := event.Decode(&snap); err != nil {
		n.logger.Error().Err(err).Msg("Failed to decode sync state")
		return err
	}
	if !snap.State.IsTerminal() || !n.claim(snap.StartedAt) {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatSnapshot(snap))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("chat_id", n.chatID).Str("state", string(snap.State)).Msg("Failed to send sync notification")
		return err
	}
	n.logger.Debug().Str("state", string(snap.State)).Str("job_id", snap.JobID).Msg("Sync notification sent")
	return nil
}

// claim reports whether the run that started at startedAt has not been announced yet.
func (n *TelegramNotifier) claim(startedAt time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notified && n.lastRun.Equal(startedAt) {
		return false
	}
	n.lastRun = startedAt
	n.notified = true
	return true
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// FormatSnapshot renders a terminal snapshot as a Markdown message.
func FormatSnapshot(snap orchestrator.Snapshot) string {
	var icon string
	switch snap.State {
	case orchestrator.StateCompleted:
		icon = "✅"
	case orchestrator.StateFailed:
		icon = "❌"
	case orchestrator.StateTimedOut:
		icon = "⏳"
	default:
		icon = "⏹"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Синхронизация: %s*\n", icon, markdownEscaper.Replace(string(snap.State)))
	if snap.Message != "" {
		fmt.Fprintf(&b, "%s\n", markdownEscaper.Replace(snap.Message))
	}
	if snap.JobID != "" {
		fmt.Fprintf(&b, "Задача: `%s`\n", snap.JobID)
	}
	if snap.ErrorKind != orchestrator.KindNone {
		fmt.Fprintf(&b, "Причина: %s\n", snap.ErrorKind)
	}
	fmt.Fprintf(&b, "Опросов: %d", snap.Attempts)
	return b.String()
}
