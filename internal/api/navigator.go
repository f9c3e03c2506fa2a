package api

import (
	"context"
	"time"

	"gibster/internal/domain"
	"gibster/internal/events"

	"github.com/rs/zerolog"
)

// Navigator sends the user to the login entry point.
type Navigator interface {
	RedirectToLogin(ctx context.Context, method, path string)
}

// EventNavigator announces the redirect on the event bus; the CLI, the web
// feed and the orchestrator each react to it.
type EventNavigator struct {
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func NewEventNavigator(bus domain.EventPublisher, logger *zerolog.Logger) *EventNavigator {
	return &EventNavigator{bus: bus, logger: logger}
}

func (n *EventNavigator) RedirectToLogin(ctx context.Context, method, path string) {
	payload := events.SessionExpiredPayload{
		Location: events.LoginPath,
		Method:   method,
		Path:     path,
		At:       time.Now().UTC(),
	}
	if err := n.bus.PublishJSON(events.EventSessionExpired, payload); err != nil {
		n.logger.Error().Err(err).Msg("Failed to publish session expiry")
	}
}
