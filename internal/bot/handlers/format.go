package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insights"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

// Telegram allows 1024 characters in a caption; the rest of the message needs room.
const maxAnalysisTextLength = 900

var errNotANumber = errors.New("not a number")

// parseNumber accepts both "4.5" and "4,5".
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, errNotANumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotANumber
	}
	return v, nil
}

// commandNumbers parses up to limit whitespace separated numeric arguments.
func commandNumbers(args string, limit int) ([]float64, error) {
	fields := strings.Fields(args)
	if len(fields) > limit {
		return nil, fmt.Errorf("expected at most %d arguments", limit)
	}
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseNumber(f)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// parsePeriod reads "HH:MM-HH:MM".
func parsePeriod(text string) (start, end string, err error) {
	parts := strings.Split(text, "-")
	if len(parts) != 2 {
		return "", "", errors.New("expected HH:MM-HH:MM")
	}
	start, end = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if _, err := services.TimeToMinutes(start); err != nil {
		return "", "", errors.New("invalid start time")
	}
	if _, err := services.TimeToMinutes(end); err != nil {
		return "", "", errors.New("invalid end time")
	}
	return start, end, nil
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "`", "\\`")
	return r.Replace(strings.ToValidUTF8(s, ""))
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func formatDose(d insulin.DoseRecommendation, current *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💉 *Рекомендуемая доза:* %.1f ед.\n", d.RoundedDose)
	fmt.Fprintf(&b, "• на углеводы: %.2f ед.\n", d.CarbInsulin)
	fmt.Fprintf(&b, "• коррекция: %.2f ед.\n", d.CorrectionInsulin)
	if d.IOB > 0 {
		fmt.Fprintf(&b, "• активный инсулин: −%.2f ед.\n", d.IOB)
	}
	if current != nil {
		fmt.Fprintf(&b, "🩸 Текущий сахар: %.0f мг/дл\n", *current)
	}
	for _, flag := range d.SafetyFlags {
		b.WriteString("⚠️ " + flagText(flag) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func flagText(flag string) string {
	switch flag {
	case insulin.FlagBelowTargetNoCorrection:
		return "Сахар ниже целевого диапазона, коррекция не добавлена"
	case insulin.FlagBelowMinDose:
		return "Доза ниже минимальной"
	case insulin.FlagClampedToMaxDose:
		return "Доза ограничена максимумом"
	default:
		return flag
	}
}

func riskText(level forecast.RiskLevel) string {
	switch level {
	case forecast.RiskLow:
		return "🟡 риск гипогликемии"
	case forecast.RiskHigh:
		return "🟠 риск гипергликемии"
	case forecast.RiskExtreme:
		return "🔴 критическое значение"
	default:
		return "🟢 в норме"
	}
}

func formatForecast(r *forecast.Result) string {
	p := r.Prediction
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *Прогноз через %d мин:* %.0f мг/дл\n", p.TimeHorizonMinutes, p.Glucose)
	fmt.Fprintf(&b, "Сейчас: %.0f мг/дл (%+.0f)\n", p.Current, p.Change)
	fmt.Fprintf(&b, "Оценка: %s\n", riskText(p.Risk.Level))
	for _, point := range p.Timeline {
		fmt.Fprintf(&b, "• +%d мин: %.0f\n", point.Minutes, point.Glucose)
	}
	fmt.Fprintf(&b, "Модель: %s, точек: %d", r.Metadata.ModelUsed, r.Metadata.DataPointsUsed)
	return b.String()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf(format, *v)
}

func formatInsights(s *insights.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Статистика за %d дн.*\n", s.Days)
	fmt.Fprintf(&b, "Измерений: %d\n", s.SampleCount)
	fmt.Fprintf(&b, "Средний сахар: %s\n", optional(s.Average, "%.1f мг/дл"))
	fmt.Fprintf(&b, "Время в диапазоне %.0f-%.0f: %.1f%%\n", s.Low, s.High, s.TimeInRangePct)
	fmt.Fprintf(&b, "Гипо: %d, гипер: %d\n", s.LowCount, s.HighCount)
	fmt.Fprintf(&b, "GMI: %s\n", optional(s.GMI, "%.1f%%"))
	fmt.Fprintf(&b, "Вариабельность (CV): %s", optional(s.CV, "%.1f%%"))
	if s.SpikeBucket != nil {
		fmt.Fprintf(&b, "\nБольше всего скачков: %s", *s.SpikeBucket)
	}
	return b.String()
}

func alertText(alertType string, level float64) string {
	if alertType == domain.AlertLowGlucose {
		return fmt.Sprintf("Низкий сахар: %.0f мг/дл. Примите быстрые углеводы.", level)
	}
	return fmt.Sprintf("Высокий сахар: %.0f мг/дл.", level)
}

func confidenceText(c float64) string {
	switch {
	case c >= 0.8:
		return "высокая"
	case c >= 0.6:
		return "средняя"
	default:
		return "низкая"
	}
}

func formatMealResult(r *services.MealResult, userWeight float64) string {
	var weightText string
	switch {
	case userWeight > 0:
		weightText = fmt.Sprintf("⚖️ *Введенный вес:* %.0f г", userWeight)
	case r.Weight > 0:
		weightText = fmt.Sprintf("⚖️ *Рассчитанный вес:* %.0f г", r.Weight)
	default:
		weightText = "⚖️ *Вес:* не указан"
	}

	text := fmt.Sprintf("🍽️ *Анализ блюда*\n\n"+
		"🍞 *Углеводы:* %.1f г\n"+
		"%s\n"+
		"🎯 *Уверенность:* %s\n"+
		"%s",
		r.Carbs,
		formatDose(r.Dose, r.CurrentGlucose),
		confidenceText(r.Confidence),
		weightText,
	)
	if r.AnalysisText != "" {
		text += "\n\n📊 *Как считали:*\n" + truncate(escapeMarkdown(r.AnalysisText), maxAnalysisTextLength)
	}
	return text
}

// userMessage turns an error into a reply. Unexpected errors get a generic text.
func userMessage(err error) string {
	switch apperrors.HTTPStatus(err) {
	case 400, 404, 422:
		return "⚠️ " + apperrors.PublicMessage(err)
	case 429:
		return "Слишком много запросов, попробуйте позже."
	case 502, 504:
		return "Сервис анализа временно недоступен. Попробуйте еще раз через несколько минут."
	default:
		return "Произошла ошибка. Попробуйте еще раз."
	}
}
