package menus

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/keyboards"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

// Sender is the part of the Telegram API used to talk to a chat.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

const mainMenuText = `🤖 *ДиаАИ* — твой помощник для управления диабетом

🍽️ Отправь фото еды, и я:
• Определю количество углеводов
• Предложу дозу инсулина с учетом текущего сахара

📈 Прогноз сахара на 30 минут вперед
📊 Статистика и время в диапазоне

⚠️ *Важно:* Это справочная информация, всегда консультируйтесь с врачом!

Выберите действие:`

// SendMainMenu sends the main menu to a chat
func SendMainMenu(api Sender, chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, mainMenuText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboards.MainMenu()
	_, err := api.Send(msg)
	return err
}

// SendSettingsMenu sends the settings menu to a chat
func SendSettingsMenu(api Sender, chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "Настройки:")
	msg.ReplyMarkup = keyboards.SettingsMenu()
	_, err := api.Send(msg)
	return err
}

// SendInsulinRatioMenu sends the carb ratio management menu
func SendInsulinRatioMenu(api Sender, chatID int64, ratios []domain.CarbRatioPeriod) error {
	msg := tgbotapi.NewMessage(chatID, RatioSummary(ratios))
	msg.ReplyMarkup = keyboards.InsulinRatioMenu(len(ratios) > 0)
	_, err := api.Send(msg)
	return err
}

// RatioSummary lists the periods and how much of the day they cover.
func RatioSummary(ratios []domain.CarbRatioPeriod) string {
	if len(ratios) == 0 {
		return "У вас пока нет сохраненных коэффициентов. Нажмите 'Добавить' чтобы создать новый."
	}

	var b strings.Builder
	b.WriteString("Ваши коэффициенты:\n\n")
	for _, r := range ratios {
		fmt.Fprintf(&b, "🕒 %s - %s: %.1f г/ед\n", r.StartTime, r.EndTime, r.Ratio)
	}
	b.WriteString("\n")

	totalHours := float64(services.CoverageMinutes(ratios)) / 60.0
	if totalHours < 24 {
		fmt.Fprintf(&b, "⚠️ Внимание: сохранено только %.1f часов из 24\n", totalHours)
		b.WriteString("В остальное время используется коэффициент из профиля\n")
	} else {
		b.WriteString("✅ Периоды полностью покрывают 24 часа\n")
	}
	return b.String()
}
