package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is Telegram's limit for one text message.
const maxMessageLength = 4096

// Telegram delivers notifications as bot messages.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// NewTelegram creates a notifier from a connected bot API.
func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

// Notify sends text to chatID as plain text.
func (t *Telegram) Notify(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message to %d: %w", chatID, err)
	}
	return nil
}

// Log writes notifications to the process log. It is used when no bot
// token is configured.
type Log struct{}

// Notify logs the message and never fails.
func (Log) Notify(_ context.Context, chatID int64, text string) error {
	log.Printf("Notification for chat %d: %s", chatID, text)
	return nil
}

func clip(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageLength {
		return text
	}
	return string(runes[:maxMessageLength-1]) + "…"
}
