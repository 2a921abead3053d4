package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vladimiradmaev/diabetes-backend/internal/config"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

const (
	providerGemini = "gemini"
	providerManual = "manual"

	maxImageBytes = 10 << 20
)

// FoodAnalysis is the vision model's reading of a meal photo.
type FoodAnalysis struct {
	FoodItems    []string        `json:"food_items"`
	Components   []FoodComponent `json:"components"`
	Carbs        float64         `json:"carbs"`
	Weight       float64         `json:"weight"`
	Confidence   string          `json:"confidence"`
	AnalysisText string          `json:"analysis_text"`
}

// FoodAnalyzer estimates carbohydrates from a photo.
type FoodAnalyzer interface {
	AnalyzeFoodImage(ctx context.Context, image []byte, weight float64) (*FoodAnalysis, error)
	Provider() string
}

// VisionService asks Gemini to estimate the carbs in a meal photo.
type VisionService struct {
	client *genai.Client
	model  string
}

func NewVisionService(ctx context.Context, cfg config.GeminiConfig) (*VisionService, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ErrFeatureDisabled.Code, "Vision analysis is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &VisionService{
		client: client,
		model:  cfg.Model,
	}, nil
}

func (s *VisionService) Provider() string { return providerGemini }

// Close releases the Gemini client.
func (s *VisionService) Close() error {
	return s.client.Close()
}

// AnalyzeFoodImage sends the photo with the carb estimation prompt. A
// non-positive weight asks the model to estimate the portion weight too.
func (s *VisionService) AnalyzeFoodImage(ctx context.Context, image []byte, weight float64) (*FoodAnalysis, error) {
	model := s.client.GenerativeModel(s.model)
	model.SetTemperature(0.2)

	resp, err := model.GenerateContent(ctx, genai.ImageData(imageFormat(image), image), genai.Text(foodPrompt(weight)))
	if err != nil {
		return nil, apperrors.NewExternalAPIError(err, "Gemini")
	}

	text := responseText(resp)
	if text == "" {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("empty response"), "Gemini")
	}
	result, err := parseFoodAnalysis(text)
	if err != nil {
		logger.WithContext(ctx).Warn("Unparseable vision response", "error", err, "response", text)
		return nil, apperrors.NewExternalAPIError(err, "Gemini")
	}
	if weight > 0 {
		result.Weight = weight
	}
	return result, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// imageFormat sniffs the subtype genai.ImageData expects.
func imageFormat(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}

func foodPrompt(weight float64) string {
	weightRule := `The user did not weigh the food. Estimate the portion weight in grams
from plate size and standard portions and return it in "weight".`
	if weight > 0 {
		weightRule = fmt.Sprintf(`The user weighed the food at %.1f grams. Base the carbohydrate
estimate on exactly this weight and return it in "weight".`, weight)
	}

	return `You are a certified diabetes educator estimating carbohydrates for insulin dosing.

Identify the food items in the image and list each component with the
carbohydrates in grams it contributes, then give the total as their sum. Use
standard nutritional databases. Include hidden carbohydrate sources such as
sauces, breading and sugar. Prefer nutrition labels when visible. Rate your
confidence as low, medium or high.

` + weightRule + `

Write food names and analysis_text in Russian, briefly, describing how the
estimate was made.

Respond with a single JSON object and nothing else:
{
  "food_items": ["item1", "item2"],
  "components": [{"name": "item1", "carbs_g": 40.5}, {"name": "item2", "carbs_g": 5}],
  "carbs": 45.5,
  "weight": 250,
  "confidence": "low|medium|high",
  "analysis_text": "..."
}`
}

func parseFoodAnalysis(text string) (*FoodAnalysis, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("no valid JSON found in response")
	}
	var result FoodAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Carbs < 0 {
		return nil, fmt.Errorf("negative carbs in response: %v", result.Carbs)
	}

	// Components without a number are filled from the lookup table. Their
	// sum stands in for a missing total.
	sum, ok := estimateComponentCarbs(result.Components)
	if result.Carbs == 0 && ok {
		result.Carbs = sum
	}
	if len(result.FoodItems) == 0 {
		for _, c := range result.Components {
			if c.Name != "" {
				result.FoodItems = append(result.FoodItems, c.Name)
			}
		}
	}
	return &result, nil
}

// extractJSON returns the outermost {...} of s, dropping code fences or
// prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// confidenceScore maps the model's confidence label to a number.
func confidenceScore(label string) float64 {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return 0.9
	case "medium":
		return 0.6
	case "low":
		return 0.3
	default:
		return 0.5
	}
}
