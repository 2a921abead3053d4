package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/keyboards"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/menus"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// Temporary data keys
const (
	tempStartTime = "start_time"
	tempEndTime   = "end_time"
)

// TextHandler handles free text according to the conversation state
type TextHandler struct {
	api          Sender
	deps         Dependencies
	stateManager *state.Manager
}

// NewTextHandler creates a new text handler
func NewTextHandler(api Sender, deps Dependencies, stateManager *state.Manager) *TextHandler {
	return &TextHandler{
		api:          api,
		deps:         deps,
		stateManager: stateManager,
	}
}

// Handle processes a text message
func (h *TextHandler) Handle(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	current := h.stateManager.GetUserState(ctx, telegramID(user))
	logger.WithContext(ctx).Debug("Handling text", "state", current)

	switch current {
	case state.WaitingForGlucose:
		return h.handleGlucose(ctx, message, user)
	case state.WaitingForTimePeriod:
		return h.handleTimePeriod(ctx, message, user)
	case state.WaitingForRatio:
		return h.handleRatio(ctx, message, user)
	default:
		return h.send(message.Chat.ID, "Пожалуйста, используйте меню для выбора действия.", nil)
	}
}

func (h *TextHandler) handleGlucose(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	level, err := parseNumber(message.Text)
	if err != nil {
		return h.send(message.Chat.ID, "Пожалуйста, введите число в мг/дл (например: 126)", nil)
	}
	if err := recordGlucose(ctx, h.api, h.deps, message.Chat.ID, user.ID, level); err != nil {
		// keep waiting so the user can correct the value
		return err
	}
	if err := h.stateManager.SetUserState(ctx, telegramID(user), state.None); err != nil {
		return err
	}
	return menus.SendMainMenu(h.api, message.Chat.ID)
}

func (h *TextHandler) handleTimePeriod(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	start, end, err := parsePeriod(message.Text)
	if err != nil {
		return h.send(message.Chat.ID, "Неверный формат. Введите период в формате ЧЧ:ММ-ЧЧ:ММ (например, 08:00-12:00)", nil)
	}

	id := telegramID(user)
	if err := h.stateManager.SetTempData(ctx, id, tempStartTime, start); err != nil {
		return err
	}
	if err := h.stateManager.SetTempData(ctx, id, tempEndTime, end); err != nil {
		return err
	}
	if err := h.stateManager.SetUserState(ctx, id, state.WaitingForRatio); err != nil {
		return err
	}

	back := keyboards.Back("◀️ Отмена", keyboards.InsulinRatio)
	return h.send(message.Chat.ID, "Введите коэффициент (сколько граммов углеводов покрывает 1 единица инсулина):", &back)
}

func (h *TextHandler) handleRatio(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	ratio, err := parseNumber(message.Text)
	if err != nil {
		return h.send(message.Chat.ID, "Пожалуйста, введите корректное число (например: 12.5)", nil)
	}

	id := telegramID(user)
	start, okStart := h.stateManager.GetTempData(ctx, id, tempStartTime)
	end, okEnd := h.stateManager.GetTempData(ctx, id, tempEndTime)
	if !okStart || !okEnd {
		if err := h.stateManager.SetUserState(ctx, id, state.WaitingForTimePeriod); err != nil {
			return err
		}
		return h.send(message.Chat.ID, "Период не найден. Введите период заново в формате ЧЧ:ММ-ЧЧ:ММ", nil)
	}

	if _, err := h.deps.ProfileSvc.AddRatio(ctx, user.ID, start, end, ratio); err != nil {
		back := keyboards.Back("◀️ Отмена", keyboards.InsulinRatio)
		if sendErr := h.send(message.Chat.ID, userMessage(err), &back); sendErr != nil {
			return sendErr
		}
		return err
	}

	if err := h.stateManager.Reset(ctx, id); err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Коэффициент %.1f г/ед для периода %s-%s сохранен", ratio, start, end)
	if err := h.send(message.Chat.ID, text, nil); err != nil {
		return err
	}

	ratios, err := h.deps.ProfileSvc.Ratios(ctx, user.ID)
	if err != nil {
		return err
	}
	return menus.SendInsulinRatioMenu(h.api, message.Chat.ID, ratios)
}

func (h *TextHandler) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := h.api.Send(msg)
	return err
}
