package keyboards

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// Callback data
const (
	AnalyzeFood       = "analyze_food"
	BloodSugar        = "blood_sugar"
	Forecast          = "forecast"
	Insights          = "insights"
	Settings          = "settings"
	InsulinRatio      = "insulin_ratio"
	AddInsulinRatio   = "add_insulin_ratio"
	DeleteRatioMenu   = "delete_insulin_ratio"
	ClearRatios       = "clear_ratios"
	MainMenuData      = "main_menu"
	Help              = "help"
	DeleteRatioPrefix = "delete_ratio:"
)

// MainMenu creates the main menu keyboard
func MainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🍽️ Анализ еды", AnalyzeFood),
			tgbotapi.NewInlineKeyboardButtonData("🩸 Уровень сахара", BloodSugar),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Прогноз", Forecast),
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", Insights),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Настройки", Settings),
		),
	)
}

// SettingsMenu creates the settings menu keyboard
func SettingsMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Углеводный коэффициент", InsulinRatio),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Главное меню", MainMenuData),
		),
	)
}

// InsulinRatioMenu creates the carb ratio management keyboard
func InsulinRatioMenu(hasRatios bool) tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить", AddInsulinRatio),
		),
	)

	if hasRatios {
		keyboard.InlineKeyboard = append(keyboard.InlineKeyboard,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🗑️ Удалить", DeleteRatioMenu),
				tgbotapi.NewInlineKeyboardButtonData("🧹 Очистить все", ClearRatios),
			),
		)
	}

	keyboard.InlineKeyboard = append(keyboard.InlineKeyboard,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", Settings),
		),
	)

	return keyboard
}

// DeleteRatioChoice lists one button per period.
func DeleteRatioChoice(ratios []domain.CarbRatioPeriod) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(ratios)+1)
	for _, r := range ratios {
		label := fmt.Sprintf("%s-%s: %.1f г/ед", r.StartTime, r.EndTime, r.Ratio)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", DeleteRatioPrefix, r.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Отмена", InsulinRatio),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Back returns a single-button keyboard leading to data.
func Back(label, data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data),
		),
	)
}
