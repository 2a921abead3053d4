package forecast

import "context"

// SimpleBackend averages the most recent readings. It needs no artifact and
// is always available.
type SimpleBackend struct {
	window int
}

// NewSimpleBackend averages the last 6 readings, about 30 minutes of data.
func NewSimpleBackend() *SimpleBackend {
	return &SimpleBackend{window: 6}
}

func (b *SimpleBackend) Name() string { return ModelSimple }

func (b *SimpleBackend) Predict(_ context.Context, s Series) (float64, error) {
	values := s.Glucose()
	if len(values) == 0 {
		return 0, ErrNotEnoughHistory
	}
	if len(values) > b.window {
		values = values[len(values)-b.window:]
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
