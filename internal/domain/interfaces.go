package domain

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// KeyValueStore is an origin-scoped string store, the process-level
// analogue of browser local storage.
type KeyValueStore interface {
	Get(ctx context.Context, origin, key string) (string, bool, error)
	Set(ctx context.Context, origin, key, value string) error
	Delete(ctx context.Context, origin, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
