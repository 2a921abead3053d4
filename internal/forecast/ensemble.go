package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// ModelCurrent names the last-resort fallback to the current reading.
const ModelCurrent = "current_glucose"

// Recorder receives per-backend inference outcomes.
type Recorder interface {
	RecordBackendPrediction(backend string, d time.Duration)
	RecordBackendFailure(backend string)
}

type nopRecorder struct{}

func (nopRecorder) RecordBackendPrediction(string, time.Duration) {}
func (nopRecorder) RecordBackendFailure(string)                   {}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithRecorder reports backend outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Ensemble) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithWeights replaces the ensemble weights.
func WithWeights(w map[string]float64) Option {
	return func(e *Ensemble) {
		e.weights = make(map[string]float64, len(w))
		for name, weight := range w {
			e.weights[name] = weight
		}
	}
}

// Ensemble holds the backends discovered at startup. It is immutable after
// NewEnsemble returns and safe for concurrent use.
type Ensemble struct {
	backends []Backend
	weights  map[string]float64
	rec      Recorder
	log      *slog.Logger
}

// Prediction is the outcome of one ensemble call. Every value is clamped to
// the physiological range.
type Prediction struct {
	Estimate float64
	// ByBackend holds the estimate of every backend that produced one.
	ByBackend map[string]float64
	// Produced lists backends that answered, in registration order.
	Produced []string
	// Source is the backend or fallback the estimate came from.
	Source  string
	Current float64
}

// NewEnsemble wraps the given backends. At least one backend is required.
func NewEnsemble(backends []Backend, opts ...Option) (*Ensemble, error) {
	if len(backends) == 0 {
		return nil, apperrors.ErrNoBackends
	}
	e := &Ensemble{
		backends: slices.Clone(backends),
		weights:  DefaultWeights,
		rec:      nopRecorder{},
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Available returns the names of the loaded backends.
func (e *Ensemble) Available() []string {
	names := make([]string, 0, len(e.backends))
	for _, b := range e.backends {
		names = append(names, b.Name())
	}
	return names
}

// Has reports whether a backend with the given name was loaded.
func (e *Ensemble) Has(name string) bool {
	return slices.Contains(e.Available(), name)
}

func (e *Ensemble) validModel(model string) bool {
	switch model {
	case ModelEnsemble, ModelSimple, ModelSequence, ModelTree:
		return true
	}
	return e.Has(model)
}

// Predict estimates glucose HorizonMinutes ahead. "ensemble" blends the
// weighted backends; a named backend falls back to simple and then to the
// current reading.
func (e *Ensemble) Predict(ctx context.Context, s Series, model string) (Prediction, error) {
	model = NormalizeModel(model)
	if !e.validModel(model) {
		return Prediction{}, apperrors.NewInvalidModelError(model)
	}

	current, ok := s.Current()
	if !ok {
		return Prediction{}, apperrors.NewNoDataAvailableError("No current glucose reading available")
	}
	current = Clamp(current)

	selected := e.selectBackends(model)
	values, err := e.run(ctx, s, selected)
	if err != nil {
		return Prediction{}, err
	}

	p := Prediction{
		ByBackend: make(map[string]float64, len(selected)),
		Current:   current,
	}
	for i, b := range selected {
		if values[i] == nil {
			continue
		}
		p.ByBackend[b.Name()] = Clamp(*values[i])
		p.Produced = append(p.Produced, b.Name())
	}

	if model == ModelEnsemble {
		p.Estimate, p.Source = e.blend(p)
	} else {
		p.Estimate, p.Source = fallback(p, model)
	}
	p.Estimate = Clamp(p.Estimate)
	return p, nil
}

// selectBackends returns the weighted backends for the ensemble, or the
// named backend plus simple for a direct request.
func (e *Ensemble) selectBackends(model string) []Backend {
	selected := make([]Backend, 0, len(e.backends))
	for _, b := range e.backends {
		name := b.Name()
		switch {
		case model == ModelEnsemble && e.weights[name] > 0:
			selected = append(selected, b)
		case name == model || name == ModelSimple:
			selected = append(selected, b)
		}
	}
	return selected
}

// run invokes backends concurrently. A failing backend, or one returning a
// non-finite value, leaves a nil slot. Only cancellation of ctx fails the call.
func (e *Ensemble) run(ctx context.Context, s Series, backends []Backend) ([]*float64, error) {
	values := make([]*float64, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		i, b := i, b
		g.Go(func() error {
			start := time.Now()
			v, err := b.Predict(gctx, s)
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
				err = fmt.Errorf("non-finite estimate %v", v)
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.rec.RecordBackendFailure(b.Name())
				e.log.Warn("Prediction backend failed", "backend", b.Name(), "error", err)
				return nil
			}
			e.rec.RecordBackendPrediction(b.Name(), time.Since(start))
			values[i] = &v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("prediction")
		}
		return nil, err
	}
	return values, nil
}

func (e *Ensemble) blend(p Prediction) (float64, string) {
	sum, total := 0.0, 0.0
	for _, name := range p.Produced {
		w := e.weights[name]
		if w <= 0 {
			continue
		}
		sum += p.ByBackend[name] * w
		total += w
	}
	if total == 0 {
		return p.Current, ModelCurrent
	}
	return sum / total, ModelEnsemble
}

func fallback(p Prediction, model string) (float64, string) {
	if v, ok := p.ByBackend[model]; ok {
		return v, model
	}
	if v, ok := p.ByBackend[ModelSimple]; ok {
		return v, ModelSimple
	}
	return p.Current, ModelCurrent
}
