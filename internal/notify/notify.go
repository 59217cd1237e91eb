// Package notify delivers strategy lifecycle alerts.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Notifier receives strategy lifecycle events. Implementations must not
// block the monitor loop for long.
type Notifier interface {
	Notify(event, message string) error
}

// LogNotifier writes events to the structured log only.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(event, message string) error {
	n.logger.WithField("event", event).Info(message)
	return nil
}

// TelegramNotifier pushes events to a Telegram chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier creates a Telegram notifier for the given bot token
// and chat.
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger) (*TelegramNotifier, error) {
	if logger == nil {
		logger = logrus.New()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	logger.WithField("bot", api.Self.UserName).Info("telegram notifier ready")
	return &TelegramNotifier{api: api, chatID: chatID, logger: logger}, nil
}

// Notify sends the event to the configured chat.
func (n *TelegramNotifier) Notify(event, message string) error {
	text := fmt.Sprintf("[%s] %s", event, message)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
