// Package bot runs the Telegram surface over the same services as the HTTP API.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/handlers"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	handler *handlers.UpdateHandler
}

var _ domain.BotService = (*Bot)(nil)

func NewBot(token string, deps handlers.Dependencies, stateManager *state.Manager) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot authorized", "account", api.Self.UserName)
	return &Bot{
		api:     api,
		handler: handlers.NewUpdateHandler(api, deps, stateManager),
	}, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	logger.Info("Bot is now listening for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			logger.Info("Bot is shutting down")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			// errors are logged and answered inside the handler
			_ = b.handler.Handle(ctx, update)
		}
	}
}
