package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/cache"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insights"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m.Text)
	case tgbotapi.PhotoConfig:
		f.sent = append(f.sent, m.Caption)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeUsers struct{}

func (fakeUsers) RegisterUser(_ context.Context, telegramID int64, username, _, _ string) (*database.User, error) {
	u := &database.User{TelegramID: &telegramID, Username: username}
	u.ID = 1
	return u, nil
}

type fakeDose struct {
	calls []insulin.Input
}

func (f *fakeDose) Calculate(_ context.Context, _ uint, in insulin.Input) insulin.DoseRecommendation {
	f.calls = append(f.calls, in)
	return insulin.Calculate(insulin.Input{TotalCarbs: in.TotalCarbs, CarbRatio: 10, CurrentGlucose: in.CurrentGlucose, CorrectionFactor: 50, TargetBG: 120})
}

func (f *fakeDose) CalculateForMeal(_ context.Context, _ uint, carbs float64) (insulin.DoseRecommendation, *float64) {
	return insulin.Calculate(insulin.Input{TotalCarbs: carbs, CarbRatio: 10}), nil
}

type fakeForecast struct {
	err  error
	meal forecast.MealInput
}

func (f *fakeForecast) PredictForUser(context.Context, uint, string, time.Duration) (*forecast.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &forecast.Result{Prediction: forecast.Estimate{Glucose: 150, TimeHorizonMinutes: 30, Current: 140, Change: 10}}, nil
}

func (f *fakeForecast) PredictAfterMeal(_ context.Context, _ uint, meal forecast.MealInput, _ string, _ time.Duration) (*forecast.Result, error) {
	f.meal = meal
	return &forecast.Result{Prediction: forecast.Estimate{Glucose: 190, TimeHorizonMinutes: 30, Current: 140, Change: 50}}, nil
}

func (f *fakeForecast) Status() map[string]bool { return nil }
func (f *fakeForecast) AvailableModels() []string { return nil }

type fakeGlucose struct {
	levels []float64
}

func (f *fakeGlucose) AddManual(_ context.Context, _ uint, level float64) (*services.IngestResult, error) {
	if level < 10 {
		return nil, apperrors.NewValidationError("glucose level out of range")
	}
	f.levels = append(f.levels, level)
	res := &services.IngestResult{Created: 1}
	if level < 70 {
		res.Alerts = []domain.Alert{{Type: domain.AlertLowGlucose}}
	}
	return res, nil
}

func (f *fakeGlucose) Ingest(context.Context, uint, string, []services.Reading) (*services.IngestResult, error) {
	return &services.IngestResult{}, nil
}

func (f *fakeGlucose) IngestWebhook(context.Context, uint, services.Reading) (*services.IngestResult, error) {
	return &services.IngestResult{}, nil
}

func (f *fakeGlucose) Latest(context.Context, uint) (*domain.GlucoseSample, error) { return nil, nil }

type fakeProfile struct {
	ratios []domain.CarbRatioPeriod
}

func (f *fakeProfile) Profile(context.Context, uint) (domain.UserProfile, error) {
	return domain.UserProfile{}, nil
}
func (f *fakeProfile) UpdateProfile(context.Context, uint, domain.UserProfile) error { return nil }
func (f *fakeProfile) Ratios(context.Context, uint) ([]domain.CarbRatioPeriod, error) {
	return f.ratios, nil
}
func (f *fakeProfile) AddRatio(_ context.Context, _ uint, start, end string, ratio float64) (domain.CarbRatioPeriod, error) {
	p := domain.CarbRatioPeriod{ID: uint(len(f.ratios) + 1), StartTime: start, EndTime: end, Ratio: ratio}
	f.ratios = append(f.ratios, p)
	return p, nil
}
func (f *fakeProfile) UpdateRatio(context.Context, uint, uint, string, string, float64) error {
	return nil
}
func (f *fakeProfile) DeleteRatio(_ context.Context, _ uint, id uint) error {
	for i, r := range f.ratios {
		if r.ID == id {
			f.ratios = append(f.ratios[:i], f.ratios[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrRecordNotFound
}

type fakeInsights struct{}

func (fakeInsights) Insights(_ context.Context, _ uint, days int) (*insights.Snapshot, error) {
	if days > 90 {
		return nil, apperrors.NewValidationError("days must be between 1 and 90")
	}
	return &insights.Snapshot{Days: 14, SampleCount: 3, Average: domain.Float(136.7)}, nil
}
func (fakeInsights) LastReport(context.Context, uint) (*insights.Snapshot, error) {
	return nil, apperrors.ErrRecordNotFound
}
func (fakeInsights) Statistics(context.Context, uint, string, string) (insights.RangeStatistics, error) {
	return insights.RangeStatistics{}, nil
}

type fakeMeals struct {
	weight   float64
	mealType string
}

func (f *fakeMeals) AnalyzePhoto(_ context.Context, _ uint, _ []byte, weight float64, mealType string) (*services.MealResult, error) {
	f.weight, f.mealType = weight, mealType
	return &services.MealResult{FoodItems: []string{"гречка"}, Carbs: 45, Confidence: 0.9, Dose: insulin.Calculate(insulin.Input{TotalCarbs: 45, CarbRatio: 10})}, nil
}

func (f *fakeMeals) LogMeal(context.Context, uint, services.MealLog) (*services.MealResult, error) {
	return &services.MealResult{}, nil
}

func (f *fakeMeals) ListMeals(context.Context, uint, int, int) ([]services.MealView, error) {
	return nil, nil
}

func (f *fakeMeals) GetMeal(context.Context, uint, uint) (*services.MealView, error) {
	return nil, nil
}

type fakeImages struct{ url string }

func (f *fakeImages) Fetch(_ context.Context, url string) ([]byte, error) {
	f.url = url
	return []byte{0xff, 0xd8}, nil
}

type fixture struct {
	sender   *fakeSender
	handler  *UpdateHandler
	states   *state.Manager
	dose     *fakeDose
	forecast *fakeForecast
	glucose  *fakeGlucose
	profile  *fakeProfile
	meals    *fakeMeals
	images   *fakeImages
}

func newFixture() *fixture {
	f := &fixture{
		sender:   &fakeSender{},
		states:   state.NewManager(cache.NewMemoryStore(), time.Hour),
		dose:     &fakeDose{},
		forecast: &fakeForecast{},
		glucose:  &fakeGlucose{},
		profile:  &fakeProfile{},
		meals:    &fakeMeals{},
		images:   &fakeImages{},
	}
	f.handler = NewUpdateHandler(f.sender, Dependencies{
		UserService: fakeUsers{},
		GlucoseSvc:  f.glucose,
		DoseSvc:     f.dose,
		ForecastSvc: f.forecast,
		InsightSvc:  fakeInsights{},
		MealSvc:     f.meals,
		ProfileSvc:  f.profile,
		Images:      f.images,
	}, f.states)
	return f
}

const testTelegramID = 42

func textUpdate(text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 100},
		From: &tgbotapi.User{ID: testTelegramID},
	}
	if strings.HasPrefix(text, "/") {
		length := len(strings.Fields(text)[0])
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		From:    &tgbotapi.User{ID: testTelegramID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
	}}
}

func TestDoseCommand(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.Handle(ctx, textUpdate("/dose 60 180")); err != nil {
		t.Fatal(err)
	}
	if len(f.dose.calls) != 1 || f.dose.calls[0].CurrentGlucose != 180.0 {
		t.Fatalf("Calculate calls = %+v", f.dose.calls)
	}
	// 60/10 + (180-120)/50 = 7.2 rounded to 7.0
	if !strings.Contains(f.sender.last(), "7.0 ед.") {
		t.Errorf("reply = %q", f.sender.last())
	}

	if err := f.handler.Handle(ctx, textUpdate("/dose")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.sender.last(), "Использование") {
		t.Errorf("usage reply = %q", f.sender.last())
	}
}

func TestForecastCommandReportsMissingData(t *testing.T) {
	f := newFixture()
	f.forecast.err = apperrors.ErrInsufficientData

	err := f.handler.Handle(context.Background(), textUpdate("/forecast"))
	if err == nil {
		t.Fatal("Handle() error = nil, want the forecast error")
	}
	if !strings.Contains(f.sender.last(), apperrors.ErrInsufficientData.Message) {
		t.Errorf("reply = %q", f.sender.last())
	}
}

func TestMealCommand(t *testing.T) {
	f := newFixture()
	if err := f.handler.Handle(context.Background(), textUpdate("/meal 45 4")); err != nil {
		t.Fatal(err)
	}
	if f.forecast.meal.Carbs != 45 || f.forecast.meal.Insulin != 4 {
		t.Errorf("meal = %+v", f.forecast.meal)
	}
	if !strings.Contains(f.sender.last(), "190") {
		t.Errorf("reply = %q", f.sender.last())
	}
}

func TestInsightsCommand(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.handler.Handle(ctx, textUpdate("/insights")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.sender.last(), "136.7") {
		t.Errorf("reply = %q", f.sender.last())
	}
	if err := f.handler.Handle(ctx, textUpdate("/insights 365")); err == nil {
		t.Error("Handle(/insights 365) error = nil")
	}
}

func TestSugarCommandReportsAlert(t *testing.T) {
	f := newFixture()
	if err := f.handler.Handle(context.Background(), textUpdate("/sugar 62")); err != nil {
		t.Fatal(err)
	}
	if len(f.glucose.levels) != 1 || f.glucose.levels[0] != 62 {
		t.Errorf("stored levels = %v", f.glucose.levels)
	}
	if !strings.Contains(f.sender.last(), "Низкий сахар") {
		t.Errorf("reply = %q", f.sender.last())
	}
}

func TestGlucoseConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.Handle(ctx, callbackUpdate("blood_sugar")); err != nil {
		t.Fatal(err)
	}
	if got := f.states.GetUserState(ctx, testTelegramID); got != state.WaitingForGlucose {
		t.Fatalf("state = %q", got)
	}
	if err := f.handler.Handle(ctx, textUpdate("сто")); err != nil {
		t.Fatal(err)
	}
	if got := f.states.GetUserState(ctx, testTelegramID); got != state.WaitingForGlucose {
		t.Errorf("state after bad input = %q", got)
	}
	if err := f.handler.Handle(ctx, textUpdate("126,5")); err != nil {
		t.Fatal(err)
	}
	if len(f.glucose.levels) != 1 || f.glucose.levels[0] != 126.5 {
		t.Errorf("stored levels = %v", f.glucose.levels)
	}
	if got := f.states.GetUserState(ctx, testTelegramID); got != state.None {
		t.Errorf("state after reading = %q", got)
	}
}

func TestRatioConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	steps := []struct {
		update    tgbotapi.Update
		wantState string
	}{
		{callbackUpdate("add_insulin_ratio"), state.WaitingForTimePeriod},
		{textUpdate("8-12"), state.WaitingForTimePeriod},
		{textUpdate("22:00-02:00"), state.WaitingForRatio},
		{textUpdate("14"), state.None},
	}
	for i, step := range steps {
		if err := f.handler.Handle(ctx, step.update); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := f.states.GetUserState(ctx, testTelegramID); got != step.wantState {
			t.Fatalf("step %d: state = %q, want %q", i, got, step.wantState)
		}
	}
	if len(f.profile.ratios) != 1 || f.profile.ratios[0].StartTime != "22:00" || f.profile.ratios[0].Ratio != 14 {
		t.Fatalf("ratios = %+v", f.profile.ratios)
	}

	if err := f.handler.Handle(ctx, callbackUpdate("delete_ratio:1")); err != nil {
		t.Fatal(err)
	}
	if len(f.profile.ratios) != 0 {
		t.Errorf("ratios after delete = %+v", f.profile.ratios)
	}
}

func TestPhotoAnalysis(t *testing.T) {
	f := newFixture()
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		Caption: "150 dinner",
		Chat:    &tgbotapi.Chat{ID: 100},
		From:    &tgbotapi.User{ID: testTelegramID},
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}}
	if err := f.handler.Handle(context.Background(), update); err != nil {
		t.Fatal(err)
	}
	if f.images.url != "https://files.example/large" {
		t.Errorf("fetched %q, want the largest photo", f.images.url)
	}
	if f.meals.weight != 150 || f.meals.mealType != "dinner" {
		t.Errorf("AnalyzePhoto got weight %v, type %q", f.meals.weight, f.meals.mealType)
	}
	if !strings.Contains(f.sender.last(), "45.0 г") {
		t.Errorf("caption = %q", f.sender.last())
	}
}
