package handlers

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/keyboards"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/menus"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
)

const analyzeFoodText = `📷 *Отправьте фото еды для анализа*

💡 *Для точного расчета:*
• Укажите вес в подписи к фото (например: "150")
• Сфотографируйте блюдо целиком
• Убедитесь, что освещение хорошее

🤖 *Бот определит:*
• Количество углеводов
• Рекомендуемую дозу инсулина с учетом текущего сахара`

// CallbackHandler handles callback query messages
type CallbackHandler struct {
	api          Sender
	deps         Dependencies
	stateManager *state.Manager
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(api Sender, deps Dependencies, stateManager *state.Manager) *CallbackHandler {
	return &CallbackHandler{
		api:          api,
		deps:         deps,
		stateManager: stateManager,
	}
}

// Handle processes a callback query
func (h *CallbackHandler) Handle(ctx context.Context, query *tgbotapi.CallbackQuery, user *database.User) error {
	if _, err := h.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		return err
	}
	if query.Message == nil {
		return nil
	}
	chatID := query.Message.Chat.ID

	if strings.HasPrefix(query.Data, keyboards.DeleteRatioPrefix) {
		return h.handleDeleteRatio(ctx, chatID, user, strings.TrimPrefix(query.Data, keyboards.DeleteRatioPrefix))
	}

	switch query.Data {
	case keyboards.AnalyzeFood:
		return h.promptState(ctx, chatID, user, state.WaitingForMealPhoto, analyzeFoodText, keyboards.MainMenuData)
	case keyboards.BloodSugar:
		return h.promptState(ctx, chatID, user, state.WaitingForGlucose, "Введите уровень сахара в мг/дл:", keyboards.MainMenuData)
	case keyboards.Forecast:
		result, err := h.deps.ForecastSvc.PredictForUser(ctx, user.ID, "", 0)
		if err != nil {
			return h.replyError(chatID, err)
		}
		return sendMarkdown(h.api, chatID, formatForecast(result))
	case keyboards.Insights:
		snap, err := h.deps.InsightSvc.Insights(ctx, user.ID, 0)
		if err != nil {
			return h.replyError(chatID, err)
		}
		return sendMarkdown(h.api, chatID, formatInsights(snap))
	case keyboards.Settings:
		return menus.SendSettingsMenu(h.api, chatID)
	case keyboards.InsulinRatio:
		if err := h.stateManager.Reset(ctx, telegramID(user)); err != nil {
			return err
		}
		return h.sendRatioMenu(ctx, chatID, user)
	case keyboards.AddInsulinRatio:
		if err := h.stateManager.Reset(ctx, telegramID(user)); err != nil {
			return err
		}
		return h.promptState(ctx, chatID, user, state.WaitingForTimePeriod,
			"Введите период времени в формате ЧЧ:ММ-ЧЧ:ММ (например, 08:00-12:00):", keyboards.InsulinRatio)
	case keyboards.DeleteRatioMenu:
		ratios, err := h.deps.ProfileSvc.Ratios(ctx, user.ID)
		if err != nil {
			return h.replyError(chatID, err)
		}
		msg := tgbotapi.NewMessage(chatID, "Выберите период для удаления:")
		msg.ReplyMarkup = keyboards.DeleteRatioChoice(ratios)
		_, err = h.api.Send(msg)
		return err
	case keyboards.ClearRatios:
		return h.handleClearRatios(ctx, chatID, user)
	case keyboards.MainMenuData:
		if err := h.stateManager.Reset(ctx, telegramID(user)); err != nil {
			return err
		}
		return menus.SendMainMenu(h.api, chatID)
	case keyboards.Help:
		_, err := h.api.Send(tgbotapi.NewMessage(chatID, helpText))
		return err
	default:
		_, err := h.api.Send(tgbotapi.NewMessage(chatID, "Неизвестная команда"))
		return err
	}
}

func (h *CallbackHandler) promptState(ctx context.Context, chatID int64, user *database.User, next, text, backData string) error {
	if err := h.stateManager.SetUserState(ctx, telegramID(user), next); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboards.Back("◀️ Назад", backData)
	_, err := h.api.Send(msg)
	return err
}

func (h *CallbackHandler) handleDeleteRatio(ctx context.Context, chatID int64, user *database.User, rawID string) error {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		_, err := h.api.Send(tgbotapi.NewMessage(chatID, "Неизвестная команда"))
		return err
	}
	if err := h.deps.ProfileSvc.DeleteRatio(ctx, user.ID, uint(id)); err != nil {
		return h.replyError(chatID, err)
	}
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, "✅ Коэффициент удален")); err != nil {
		return err
	}
	return h.sendRatioMenu(ctx, chatID, user)
}

func (h *CallbackHandler) handleClearRatios(ctx context.Context, chatID int64, user *database.User) error {
	ratios, err := h.deps.ProfileSvc.Ratios(ctx, user.ID)
	if err != nil {
		return h.replyError(chatID, err)
	}
	for _, r := range ratios {
		if err := h.deps.ProfileSvc.DeleteRatio(ctx, user.ID, r.ID); err != nil {
			return h.replyError(chatID, err)
		}
	}
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, "✅ Все коэффициенты успешно удалены")); err != nil {
		return err
	}
	return h.sendRatioMenu(ctx, chatID, user)
}

func (h *CallbackHandler) sendRatioMenu(ctx context.Context, chatID int64, user *database.User) error {
	ratios, err := h.deps.ProfileSvc.Ratios(ctx, user.ID)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return menus.SendInsulinRatioMenu(h.api, chatID, ratios)
}

func (h *CallbackHandler) replyError(chatID int64, err error) error {
	if _, sendErr := h.api.Send(tgbotapi.NewMessage(chatID, userMessage(err))); sendErr != nil {
		return sendErr
	}
	return err
}
