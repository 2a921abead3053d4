package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// GateWeights holds one LSTM gate: W is hidden x input, U is hidden x hidden.
type GateWeights struct {
	W [][]float64 `json:"w"`
	U [][]float64 `json:"u"`
	B []float64   `json:"b"`
}

// SequenceArtifact is the exported form of a trained single layer LSTM
// with a linear head predicting normalized glucose.
type SequenceArtifact struct {
	Window     int         `json:"window"`
	InputSize  int         `json:"input_size"`
	HiddenSize int         `json:"hidden_size"`
	NormMin    float64     `json:"norm_min"`
	NormMax    float64     `json:"norm_max"`
	CarbScale  float64     `json:"carb_scale"`
	Forget     GateWeights `json:"forget"`
	Input      GateWeights `json:"input"`
	Cell       GateWeights `json:"cell"`
	Output     GateWeights `json:"output"`
	Head       struct {
		W []float64 `json:"w"`
		B float64   `json:"b"`
	} `json:"head"`
}

// SequenceBackend runs the LSTM forward pass over the recent glucose window.
// Weights are read only after construction.
type SequenceBackend struct {
	name string
	a    SequenceArtifact
}

// LoadSequenceBackend reads a JSON artifact from disk.
func LoadSequenceBackend(name, path string) (*SequenceBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence artifact: %w", err)
	}
	var a SequenceArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse sequence artifact: %w", err)
	}
	return NewSequenceBackend(name, a)
}

// NewSequenceBackend validates artifact shapes.
func NewSequenceBackend(name string, a SequenceArtifact) (*SequenceBackend, error) {
	if name == "" {
		name = ModelSequence
	}
	if a.Window < 2 {
		return nil, fmt.Errorf("window must be at least 2, got %d", a.Window)
	}
	if a.InputSize != 1 && a.InputSize != 2 {
		return nil, fmt.Errorf("input_size must be 1 or 2, got %d", a.InputSize)
	}
	if a.HiddenSize < 1 {
		return nil, fmt.Errorf("hidden_size must be positive, got %d", a.HiddenSize)
	}
	if a.NormMax <= a.NormMin {
		a.NormMin, a.NormMax = 20, 420
	}
	if a.CarbScale <= 0 {
		a.CarbScale = 100
	}
	for gate, g := range map[string]GateWeights{"forget": a.Forget, "input": a.Input, "cell": a.Cell, "output": a.Output} {
		if err := checkMatrix(g.W, a.HiddenSize, a.InputSize); err != nil {
			return nil, fmt.Errorf("%s.w: %w", gate, err)
		}
		if err := checkMatrix(g.U, a.HiddenSize, a.HiddenSize); err != nil {
			return nil, fmt.Errorf("%s.u: %w", gate, err)
		}
		if len(g.B) != a.HiddenSize {
			return nil, fmt.Errorf("%s.b: want %d values, got %d", gate, a.HiddenSize, len(g.B))
		}
	}
	if len(a.Head.W) != a.HiddenSize {
		return nil, fmt.Errorf("head.w: want %d values, got %d", a.HiddenSize, len(a.Head.W))
	}
	return &SequenceBackend{name: name, a: a}, nil
}

func checkMatrix(m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("want %d rows, got %d", rows, len(m))
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("row %d: want %d columns, got %d", i, cols, len(row))
		}
	}
	return nil
}

func (b *SequenceBackend) Name() string { return b.name }

func (b *SequenceBackend) Predict(ctx context.Context, s Series) (float64, error) {
	inputs, err := b.inputs(s)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	hidden := b.a.HiddenSize
	h := make([]float64, hidden)
	c := make([]float64, hidden)
	next := make([]float64, hidden)

	for _, x := range inputs {
		for j := 0; j < hidden; j++ {
			f := sigmoid(gate(b.a.Forget, j, x, h))
			i := sigmoid(gate(b.a.Input, j, x, h))
			cBar := math.Tanh(gate(b.a.Cell, j, x, h))
			o := sigmoid(gate(b.a.Output, j, x, h))
			c[j] = f*c[j] + i*cBar
			next[j] = o * math.Tanh(c[j])
		}
		h, next = next, h
	}

	y := b.a.Head.B
	for j, w := range b.a.Head.W {
		y += w * h[j]
	}
	return b.denormalize(y), nil
}

// inputs builds the last Window steps, forward filling gaps and back
// filling a leading gap from the first reading.
func (b *SequenceBackend) inputs(s Series) ([][]float64, error) {
	if len(s.Slots) < b.a.Window {
		return nil, ErrNotEnoughHistory
	}
	window := s.Slots[len(s.Slots)-b.a.Window:]

	present := 0
	var first *float64
	for _, slot := range window {
		if slot.Glucose != nil {
			present++
			if first == nil {
				first = slot.Glucose
			}
		}
	}
	if present*2 < b.a.Window {
		return nil, ErrNotEnoughHistory
	}

	last := *first
	inputs := make([][]float64, len(window))
	for t, slot := range window {
		if slot.Glucose != nil {
			last = *slot.Glucose
		}
		x := []float64{b.normalize(last)}
		if b.a.InputSize == 2 {
			x = append(x, slot.Carbs/b.a.CarbScale)
		}
		inputs[t] = x
	}
	return inputs, nil
}

func (b *SequenceBackend) normalize(v float64) float64 {
	return (v - b.a.NormMin) / (b.a.NormMax - b.a.NormMin)
}

func (b *SequenceBackend) denormalize(v float64) float64 {
	return b.a.NormMin + v*(b.a.NormMax-b.a.NormMin)
}

// gate computes row j of W*x + U*h + b.
func gate(g GateWeights, j int, x, h []float64) float64 {
	sum := g.B[j]
	for k, w := range g.W[j] {
		sum += w * x[k]
	}
	for k, u := range g.U[j] {
		sum += u * h[k]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
