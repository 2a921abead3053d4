package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/menus"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

const helpText = `Доступные команды:
/start - Показать главное меню
/dose <углеводы> [сахар] - Рассчитать дозу инсулина
/forecast [модель] - Прогноз сахара на 30 минут
/meal <углеводы> [инсулин] - Прогноз после еды
/insights [дни] - Статистика за период (по умолчанию 14 дней)
/sugar <мг/дл> - Записать уровень сахара
/ratios - Углеводные коэффициенты
/help - Показать это сообщение

Анализ еды по фото:
Отправьте фото блюда, в подписи можно указать вес в граммах, например "150".
Если вес не указан, бот попробует оценить его автоматически.`

// CommandHandler handles bot commands
type CommandHandler struct {
	api          Sender
	deps         Dependencies
	stateManager *state.Manager
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(api Sender, deps Dependencies, stateManager *state.Manager) *CommandHandler {
	return &CommandHandler{
		api:          api,
		deps:         deps,
		stateManager: stateManager,
	}
}

// Handle processes a command message
func (h *CommandHandler) Handle(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	logger.WithContext(ctx).Info("Handling command", "command", message.Command(), "user_id", user.ID)

	chatID := message.Chat.ID
	args := message.CommandArguments()

	switch message.Command() {
	case "start":
		if err := h.stateManager.Reset(ctx, telegramID(user)); err != nil {
			logger.WithContext(ctx).Warn("failed to reset bot session", "error", err)
		}
		return menus.SendMainMenu(h.api, chatID)
	case "help":
		return h.reply(chatID, helpText)
	case "dose":
		return h.handleDose(ctx, chatID, user.ID, args)
	case "forecast":
		return h.handleForecast(ctx, chatID, user.ID, args)
	case "meal":
		return h.handleMeal(ctx, chatID, user.ID, args)
	case "insights":
		return h.handleInsights(ctx, chatID, user.ID, args)
	case "sugar":
		return h.handleSugar(ctx, chatID, user.ID, args)
	case "ratios":
		ratios, err := h.deps.ProfileSvc.Ratios(ctx, user.ID)
		if err != nil {
			return h.replyError(chatID, err)
		}
		return menus.SendInsulinRatioMenu(h.api, chatID, ratios)
	default:
		return h.reply(chatID, "Неизвестная команда. Используйте /help для просмотра доступных команд.")
	}
}

func (h *CommandHandler) handleDose(ctx context.Context, chatID int64, userID uint, args string) error {
	values, err := commandNumbers(args, 2)
	if err != nil || len(values) == 0 {
		return h.reply(chatID, "Использование: /dose <углеводы, г> [сахар, мг/дл]\nНапример: /dose 60 180")
	}

	var (
		dose    insulin.DoseRecommendation
		current *float64
	)
	if len(values) == 2 {
		dose = h.deps.DoseSvc.Calculate(ctx, userID, insulin.Input{TotalCarbs: values[0], CurrentGlucose: values[1]})
		current = &values[1]
	} else {
		dose, current = h.deps.DoseSvc.CalculateForMeal(ctx, userID, values[0])
	}
	return h.replyMarkdown(chatID, formatDose(dose, current))
}

func (h *CommandHandler) handleForecast(ctx context.Context, chatID int64, userID uint, args string) error {
	result, err := h.deps.ForecastSvc.PredictForUser(ctx, userID, strings.TrimSpace(args), 0)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.replyMarkdown(chatID, formatForecast(result))
}

func (h *CommandHandler) handleMeal(ctx context.Context, chatID int64, userID uint, args string) error {
	values, err := commandNumbers(args, 2)
	if err != nil || len(values) == 0 {
		return h.reply(chatID, "Использование: /meal <углеводы, г> [инсулин, ед]\nНапример: /meal 45 4")
	}
	meal := forecast.MealInput{Carbs: values[0]}
	if len(values) == 2 {
		meal.Insulin = values[1]
	}
	result, err := h.deps.ForecastSvc.PredictAfterMeal(ctx, userID, meal, "", 0)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.replyMarkdown(chatID, formatForecast(result))
}

func (h *CommandHandler) handleInsights(ctx context.Context, chatID int64, userID uint, args string) error {
	days := 0
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil {
			return h.reply(chatID, "Использование: /insights [дни]\nНапример: /insights 30")
		}
		days = n
	}
	snap, err := h.deps.InsightSvc.Insights(ctx, userID, days)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.replyMarkdown(chatID, formatInsights(snap))
}

func (h *CommandHandler) handleSugar(ctx context.Context, chatID int64, userID uint, args string) error {
	level, err := parseNumber(args)
	if err != nil {
		return h.reply(chatID, "Использование: /sugar <мг/дл>\nНапример: /sugar 126")
	}
	return recordGlucose(ctx, h.api, h.deps, chatID, userID, level)
}

func (h *CommandHandler) reply(chatID int64, text string) error {
	_, err := h.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (h *CommandHandler) replyMarkdown(chatID int64, text string) error {
	return sendMarkdown(h.api, chatID, text)
}

func (h *CommandHandler) replyError(chatID int64, err error) error {
	if sendErr := h.reply(chatID, userMessage(err)); sendErr != nil {
		return sendErr
	}
	return err
}

// recordGlucose stores a manual reading and reports any alert it raised.
func recordGlucose(ctx context.Context, api Sender, deps Dependencies, chatID int64, userID uint, level float64) error {
	res, err := deps.GlucoseSvc.AddManual(ctx, userID, level)
	if err != nil {
		if _, sendErr := api.Send(tgbotapi.NewMessage(chatID, userMessage(err))); sendErr != nil {
			return sendErr
		}
		return err
	}
	text := fmt.Sprintf("✅ Записано: %.0f мг/дл", level)
	for _, a := range res.Alerts {
		text += "\n🚨 " + alertText(a.Type, level)
	}
	_, err = api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// sendMarkdown falls back to plain text when Telegram rejects the markup.
func sendMarkdown(api Sender, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := api.Send(msg); err != nil {
		msg.ParseMode = ""
		_, err = api.Send(msg)
		return err
	}
	return nil
}

func telegramID(user *database.User) int64 {
	if user.TelegramID == nil {
		return 0
	}
	return *user.TelegramID
}
