package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/keyboards"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// PhotoHandler handles photo messages
type PhotoHandler struct {
	api          Sender
	deps         Dependencies
	stateManager *state.Manager
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(api Sender, deps Dependencies, stateManager *state.Manager) *PhotoHandler {
	return &PhotoHandler{
		api:          api,
		deps:         deps,
		stateManager: stateManager,
	}
}

// parseCaption reads "<weight> [meal type]" from a photo caption.
func parseCaption(caption string) (weight float64, mealType string, err error) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return 0, "", nil
	}
	weight, err = parseNumber(fields[0])
	if err != nil || weight < 0 {
		return 0, "", errNotANumber
	}
	if len(fields) > 1 {
		mealType = strings.ToLower(fields[1])
	}
	return weight, mealType, nil
}

// Handle processes a photo message
func (h *PhotoHandler) Handle(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	log := logger.WithContext(ctx)
	chatID := message.Chat.ID

	weight, mealType, err := parseCaption(message.Caption)
	if err != nil {
		_, err := h.api.Send(tgbotapi.NewMessage(chatID, "Неверный формат веса. Пожалуйста, укажите вес в граммах (например: 100)."))
		return err
	}
	if weight == 0 {
		if _, err := h.api.Send(tgbotapi.NewMessage(chatID, "Вес не указан. Я попробую оценить вес блюда автоматически.")); err != nil {
			return fmt.Errorf("failed to send weight estimation message: %w", err)
		}
	}

	processing, err := h.api.Send(tgbotapi.NewMessage(chatID, "Анализирую изображение..."))
	if err != nil {
		return fmt.Errorf("failed to send processing message: %w", err)
	}
	defer func() {
		if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, processing.MessageID)); err != nil {
			log.Debug("failed to delete processing message", "error", err)
		}
	}()

	// the largest size is last
	photo := message.Photo[len(message.Photo)-1]
	url, err := h.api.GetFileDirectURL(photo.FileID)
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}
	image, err := h.deps.Images.Fetch(ctx, url)
	if err != nil {
		return h.replyError(chatID, err)
	}

	log.Info("Starting food analysis", "user_id", user.ID, "weight", weight)
	result, err := h.deps.MealSvc.AnalyzePhoto(ctx, user.ID, image, weight, mealType)
	if err != nil {
		return h.replyError(chatID, err)
	}

	if result.Carbs == 0 && len(result.FoodItems) == 0 {
		msg := tgbotapi.NewMessage(chatID, "На изображении не обнаружена еда. Пожалуйста, отправьте фото блюда для анализа.")
		msg.ReplyMarkup = resultKeyboard()
		_, err := h.api.Send(msg)
		return err
	}

	photoMsg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(photo.FileID))
	photoMsg.Caption = formatMealResult(result, weight)
	photoMsg.ParseMode = tgbotapi.ModeMarkdown
	photoMsg.ReplyMarkup = resultKeyboard()
	if _, err := h.api.Send(photoMsg); err != nil {
		photoMsg.ParseMode = ""
		if _, err := h.api.Send(photoMsg); err != nil {
			return fmt.Errorf("failed to send photo message: %w", err)
		}
	}

	return h.stateManager.SetUserState(ctx, telegramID(user), state.None)
}

func resultKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏠 Главное меню", keyboards.MainMenuData),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Новый анализ", keyboards.AnalyzeFood),
		),
	)
}

func (h *PhotoHandler) replyError(chatID int64, err error) error {
	if _, sendErr := h.api.Send(tgbotapi.NewMessage(chatID, userMessage(err))); sendErr != nil {
		return sendErr
	}
	return err
}
