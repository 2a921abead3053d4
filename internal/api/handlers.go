package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

const (
	maxBodyBytes  = 1 << 20
	maxImageBytes = 10 << 20
)

// decodeJSON reads a bounded JSON body. Numbers are kept as json.Number so
// the insulin sanitizer sees exactly what the client sent.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewInvalidInputError("request body is empty")
		}
		return apperrors.NewInvalidInputError("request body is not valid JSON")
	}
	return nil
}

func userID(r *http.Request) uint {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// queryInt returns def when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name + " must be an integer")
	}
	return v, nil
}

// lookback reads lookback minutes; zero means the service default.
func lookback(minutes int) (time.Duration, error) {
	if minutes < 0 || minutes > 24*60 {
		return 0, apperrors.NewValidationError("lookback must be between 0 and 1440 minutes")
	}
	return time.Duration(minutes) * time.Minute, nil
}

// forecastResponse flattens a forecast result next to the success flag.
type forecastResponse struct {
	Success bool `json:"success"`
	*forecast.Result
}

func (s *Server) calculateInsulin(w http.ResponseWriter, r *http.Request) {
	var in insulin.Input
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.deps.Dose.Calculate(r.Context(), userID(r), in))
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	minutes, err := queryInt(r, "lookback", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lb, err := lookback(minutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.Forecast.PredictForUser(r.Context(), userID(r), r.URL.Query().Get("model"), lb)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{Success: true, Result: result})
}

type predictMealRequest struct {
	Carbs           float64 `json:"carbs"`
	Insulin         float64 `json:"insulin"`
	Model           string  `json:"model"`
	LookbackMinutes int     `json:"lookback_minutes"`
}

func (s *Server) predictMeal(w http.ResponseWriter, r *http.Request) {
	var req predictMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, apperrors.NewInvalidMealInputError("carbs and insulin must be numbers"))
		return
	}
	lb, err := lookback(req.LookbackMinutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	meal := forecast.MealInput{Carbs: req.Carbs, Insulin: req.Insulin}
	result, err := s.deps.Forecast.PredictAfterMeal(r.Context(), userID(r), meal, req.Model, lb)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{Success: true, Result: result})
}

func (s *Server) predictStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"models":           s.deps.Forecast.Status(),
		"available_models": s.deps.Forecast.AvailableModels(),
	})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := s.deps.Insights.Statistics(r.Context(), userID(r), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.deps.Insights.Insights(r.Context(), userID(r), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) lastInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Insights.LastReport(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

type manualReadingRequest struct {
	Level float64 `json:"glucose_level"`
}

func (s *Server) addGlucose(w http.ResponseWriter, r *http.Request) {
	var req manualReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Glucose.AddManual(r.Context(), userID(r), req.Level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *Server) latestGlucose(w http.ResponseWriter, r *http.Request) {
	sample, err := s.deps.Glucose.Latest(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sample == nil {
		s.writeError(w, r, apperrors.ErrNoDataAvailable)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"timestamp":     sample.Timestamp,
		"glucose_level": sample.Level,
		"trend_arrow":   sample.Trend,
		"source":        sample.Source,
	})
}

type webhookRequest struct {
	UserID uint `json:"id"`
	services.Reading
}

func (s *Server) glucoseWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == 0 {
		s.writeError(w, r, apperrors.NewValidationError("user id is required"))
		return
	}
	if req.Timestamp.IsZero() {
		s.writeError(w, r, apperrors.NewValidationError("glucose_level and timestamp are required"))
		return
	}
	res, err := s.deps.Glucose.IngestWebhook(r.Context(), req.UserID, req.Reading)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "received", "data": res})
}

type syncRequest struct {
	Source   string             `json:"source"`
	Readings []services.Reading `json:"readings"`
}

func (s *Server) syncGlucose(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceLibreLive
	}
	res, err := s.deps.Glucose.Ingest(r.Context(), userID(r), req.Source, req.Readings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) logMeal(w http.ResponseWriter, r *http.Request) {
	var req services.MealLog
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Meals.LogMeal(r.Context(), userID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *Server) listMeals(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	meals, err := s.deps.Meals.ListMeals(r.Context(), userID(r), days, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meals)
}

func (s *Server) getMeal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "meal")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	meal, err := s.deps.Meals.GetMeal(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meal)
}

type analyzeURLRequest struct {
	ImageURL string  `json:"image_url"`
	Weight   float64 `json:"weight"`
	MealType string  `json:"meal_type"`
}

// analyzeMeal accepts either a multipart upload (image, weight, meal_type)
// or a JSON body with an image_url.
func (s *Server) analyzeMeal(w http.ResponseWriter, r *http.Request) {
	var (
		image    []byte
		weight   float64
		mealType string
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		image, weight, mealType, err = readMultipartImage(w, r)
	} else {
		var req analyzeURLRequest
		if err = decodeJSON(w, r, &req); err == nil {
			if req.ImageURL == "" {
				err = apperrors.NewValidationError("image_url is required")
			} else {
				image, err = s.deps.Images.Fetch(r.Context(), req.ImageURL)
				weight, mealType = req.Weight, req.MealType
			}
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Meals.AnalyzePhoto(r.Context(), userID(r), image, weight, mealType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func readMultipartImage(w http.ResponseWriter, r *http.Request) ([]byte, float64, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return nil, 0, "", apperrors.NewValidationError("invalid multipart body or image too large")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, 0, "", apperrors.NewValidationError("image file is required")
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, maxImageBytes+1)); err != nil {
		return nil, 0, "", apperrors.NewValidationError("failed to read image")
	}
	if buf.Len() > maxImageBytes {
		return nil, 0, "", apperrors.NewValidationError("image exceeds 10 MB")
	}

	var weight float64
	if raw := strings.TrimSpace(r.FormValue("weight")); raw != "" {
		weight, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, 0, "", apperrors.NewValidationError("weight must be a number")
		}
	}
	return buf.Bytes(), weight, r.FormValue("meal_type"), nil
}

// profileBody is the JSON form of a user profile.
type profileBody struct {
	CarbRatio        *float64 `json:"carb_ratio"`
	CorrectionFactor *float64 `json:"correction_factor"`
	TargetMin        *float64 `json:"target_glucose_min"`
	TargetMax        *float64 `json:"target_glucose_max"`
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Profile(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, profileBody{
		CarbRatio:        p.CarbRatio,
		CorrectionFactor: p.CorrectionFactor,
		TargetMin:        p.TargetMin,
		TargetMax:        p.TargetMax,
	})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileBody
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := domain.UserProfile{
		CarbRatio:        req.CarbRatio,
		CorrectionFactor: req.CorrectionFactor,
		TargetMin:        req.TargetMin,
		TargetMax:        req.TargetMax,
	}
	if err := s.deps.Profiles.UpdateProfile(r.Context(), userID(r), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

type ratioBody struct {
	ID        uint    `json:"id,omitempty"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Ratio     float64 `json:"ratio"`
}

func toRatioBody(p domain.CarbRatioPeriod) ratioBody {
	return ratioBody{ID: p.ID, StartTime: p.StartTime, EndTime: p.EndTime, Ratio: p.Ratio}
}

func (s *Server) listRatios(w http.ResponseWriter, r *http.Request) {
	ratios, err := s.deps.Profiles.Ratios(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]ratioBody, 0, len(ratios))
	for _, p := range ratios {
		out = append(out, toRatioBody(p))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) addRatio(w http.ResponseWriter, r *http.Request) {
	var req ratioBody
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Profiles.AddRatio(r.Context(), userID(r), req.StartTime, req.EndTime, req.Ratio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toRatioBody(p))
}

func pathID(r *http.Request, kind string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NewValidationError("invalid " + kind + " id")
	}
	return uint(id), nil
}

func (s *Server) updateRatio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ratio")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ratioBody
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Profiles.UpdateRatio(r.Context(), userID(r), id, req.StartTime, req.EndTime, req.Ratio); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = id
	writeData(w, http.StatusOK, req)
}

func (s *Server) deleteRatio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ratio")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Profiles.DeleteRatio(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
