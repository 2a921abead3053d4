package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// UpdateHandler handles telegram updates and coordinates other handlers
type UpdateHandler struct {
	api             Sender
	deps            Dependencies
	errHandler      *apperrors.Handler
	callbackHandler *CallbackHandler
	commandHandler  *CommandHandler
	textHandler     *TextHandler
	photoHandler    *PhotoHandler
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(api Sender, deps Dependencies, stateManager *state.Manager) *UpdateHandler {
	return &UpdateHandler{
		api:             api,
		deps:            deps,
		errHandler:      apperrors.NewHandler(logger.GetLogger()),
		callbackHandler: NewCallbackHandler(api, deps, stateManager),
		commandHandler:  NewCommandHandler(api, deps, stateManager),
		textHandler:     NewTextHandler(api, deps, stateManager),
		photoHandler:    NewPhotoHandler(api, deps, stateManager),
	}
}

// Handle processes a telegram update
func (h *UpdateHandler) Handle(ctx context.Context, update tgbotapi.Update) error {
	var from *tgbotapi.User
	switch {
	case update.Message != nil:
		from = update.Message.From
	case update.CallbackQuery != nil:
		from = update.CallbackQuery.From
	}
	if from == nil {
		return nil
	}

	ctx = logger.NewContext(ctx, logger.WithContext(ctx).With("telegram_id", from.ID, "update_id", update.UpdateID))

	user, err := h.deps.UserService.RegisterUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName)
	if err != nil {
		return h.errHandler.LogAndReturn(ctx, fmt.Errorf("failed to get/create user: %w", err))
	}

	switch {
	case update.CallbackQuery != nil:
		err = h.callbackHandler.Handle(ctx, update.CallbackQuery, user)
	case update.Message.IsCommand():
		err = h.commandHandler.Handle(ctx, update.Message, user)
	case len(update.Message.Photo) > 0:
		err = h.photoHandler.Handle(ctx, update.Message, user)
	case update.Message.Text != "":
		err = h.textHandler.Handle(ctx, update.Message, user)
	}
	if err != nil {
		h.errHandler.Handle(ctx, err)
	}
	return err
}
