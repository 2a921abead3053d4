package forecast

import (
	"context"
	"errors"
	"strings"
)

// Model names accepted by Predict.
const (
	ModelEnsemble = "ensemble"
	ModelSimple   = "simple"
	ModelSequence = "sequence"
	ModelTree     = "tree"
)

// Ensemble weights per backend. Backends without a weight only answer
// direct requests.
var DefaultWeights = map[string]float64{
	ModelSequence: 0.4,
	ModelTree:     0.4,
	ModelSimple:   0.2,
}

// legacy model names still sent by older clients
var modelAliases = map[string]string{
	"cnn_lstm": ModelSequence,
	"lstm":     ModelSequence,
	"lgb":      ModelTree,
	"gbt":      ModelTree,
}

// ErrNotEnoughHistory is returned by a backend whose input window cannot be
// filled from the series.
var ErrNotEnoughHistory = errors.New("not enough history")

// Backend estimates glucose HorizonMinutes after the last slot.
// Implementations must be safe for concurrent use and must not mutate
// their state in Predict.
type Backend interface {
	Name() string
	Predict(ctx context.Context, s Series) (float64, error)
}

// NormalizeModel lower-cases a model name and resolves aliases. An empty
// name means the ensemble.
func NormalizeModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return ModelEnsemble
	}
	if alias, ok := modelAliases[m]; ok {
		return alias
	}
	return m
}
