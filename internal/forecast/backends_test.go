package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// seriesOf builds a series ending at testNow. NaN marks a missing reading.
func seriesOf(values ...float64) Series {
	slots := make([]Slot, len(values))
	start := testNow.Add(-time.Duration(len(values)-1) * SlotInterval)
	for i, v := range values {
		slots[i].Timestamp = start.Add(time.Duration(i) * SlotInterval)
		if !math.IsNaN(v) {
			g := v
			slots[i].Glucose = &g
		}
	}
	return Series{Slots: slots}
}

func TestSimpleBackend(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		series Series
		want   float64
	}{
		{"fewer than window", seriesOf(100, 110), 105},
		{"last six readings", seriesOf(500, 100, 100, 100, 100, 100, 160), 110},
		{"gaps are skipped", seriesOf(60, 120, nan, nan, 120, 120, 120, 120), 110},
	}
	b := NewSimpleBackend()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Predict(context.Background(), tt.series)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Predict() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := b.Predict(context.Background(), Series{}); !errors.Is(err, ErrNotEnoughHistory) {
		t.Errorf("empty series error = %v, want ErrNotEnoughHistory", err)
	}
}

func zeroGate(hidden, input int) GateWeights {
	g := GateWeights{
		W: make([][]float64, hidden),
		U: make([][]float64, hidden),
		B: make([]float64, hidden),
	}
	for i := 0; i < hidden; i++ {
		g.W[i] = make([]float64, input)
		g.U[i] = make([]float64, hidden)
	}
	return g
}

func testSequenceArtifact() SequenceArtifact {
	a := SequenceArtifact{
		Window:     4,
		InputSize:  2,
		HiddenSize: 2,
		NormMin:    20,
		NormMax:    420,
		Forget:     zeroGate(2, 2),
		Input:      zeroGate(2, 2),
		Cell:       zeroGate(2, 2),
		Output:     zeroGate(2, 2),
	}
	a.Head.W = []float64{0, 0}
	a.Head.B = 0.5
	return a
}

func TestSequenceBackendForwardPass(t *testing.T) {
	b, err := NewSequenceBackend("", testSequenceArtifact())
	if err != nil {
		t.Fatalf("NewSequenceBackend() error = %v", err)
	}
	if b.Name() != ModelSequence {
		t.Errorf("Name() = %q, want %q", b.Name(), ModelSequence)
	}

	// zero gates keep the hidden state at 0, so the head bias decides
	got, err := b.Predict(context.Background(), seriesOf(100, 110, 120, 130))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if math.Abs(got-220) > 1e-9 {
		t.Errorf("Predict() = %v, want 220", got)
	}
}

func TestSequenceBackendInputDependence(t *testing.T) {
	a := testSequenceArtifact()
	a.InputSize = 1
	for _, g := range []*GateWeights{&a.Forget, &a.Input, &a.Cell, &a.Output} {
		*g = zeroGate(2, 1)
	}
	a.Cell.W[0][0] = 2
	a.Input.B[0] = 5
	a.Output.B[0] = 5
	a.Head.W = []float64{1, 0}
	a.Head.B = 0

	b, err := NewSequenceBackend("lstm-v2", a)
	if err != nil {
		t.Fatalf("NewSequenceBackend() error = %v", err)
	}
	low, err := b.Predict(context.Background(), seriesOf(80, 80, 80, 80))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	high, err := b.Predict(context.Background(), seriesOf(300, 300, 300, 300))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if high <= low {
		t.Errorf("higher input gave %v <= %v", high, low)
	}
}

func TestSequenceBackendNeedsHistory(t *testing.T) {
	b, err := NewSequenceBackend("", testSequenceArtifact())
	if err != nil {
		t.Fatal(err)
	}
	nan := math.NaN()
	for _, s := range []Series{
		seriesOf(100, 100),
		seriesOf(nan, nan, nan, 100),
	} {
		if _, err := b.Predict(context.Background(), s); !errors.Is(err, ErrNotEnoughHistory) {
			t.Errorf("Predict() error = %v, want ErrNotEnoughHistory", err)
		}
	}

	// half the window present is enough; the leading gap is back filled
	if _, err := b.Predict(context.Background(), seriesOf(nan, nan, 100, 100)); err != nil {
		t.Errorf("Predict() with half window error = %v", err)
	}
}

func TestSequenceArtifactValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SequenceArtifact)
	}{
		{"short window", func(a *SequenceArtifact) { a.Window = 1 }},
		{"bad input size", func(a *SequenceArtifact) { a.InputSize = 3 }},
		{"no hidden units", func(a *SequenceArtifact) { a.HiddenSize = 0 }},
		{"ragged gate", func(a *SequenceArtifact) { a.Forget.W[1] = []float64{1} }},
		{"short bias", func(a *SequenceArtifact) { a.Output.B = []float64{0} }},
		{"head size", func(a *SequenceArtifact) { a.Head.W = []float64{1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testSequenceArtifact()
			tt.mutate(&a)
			if _, err := NewSequenceBackend("", a); err == nil {
				t.Error("NewSequenceBackend() succeeded, want error")
			}
		})
	}
}

func testTreeArtifact() TreeArtifact {
	return TreeArtifact{
		BaseScore: 100,
		Features:  []string{"glucose", "diff_1"},
		Trees: []TreeSpec{
			{Nodes: []TreeNode{
				{Feature: 0, Threshold: 150, Left: 1, Right: 2, DefaultLeft: true},
				{Leaf: true, Value: -10},
				{Leaf: true, Value: 20},
			}},
			{Nodes: []TreeNode{
				{Feature: 1, Threshold: 0, Left: 1, Right: 2, DefaultLeft: false},
				{Leaf: true, Value: 1},
				{Leaf: true, Value: 5},
			}},
		},
	}
}

func TestTreeBackend(t *testing.T) {
	b, err := NewTreeBackend("", testTreeArtifact())
	if err != nil {
		t.Fatalf("NewTreeBackend() error = %v", err)
	}

	tests := []struct {
		name   string
		series Series
		want   float64
	}{
		{"low and falling", seriesOf(130, 120), 100 - 10 + 1},
		{"high and rising", seriesOf(190, 200), 100 + 20 + 5},
		// diff_1 is NaN with one slot and goes right
		{"single slot", seriesOf(120), 100 - 10 + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Predict(context.Background(), tt.series)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Predict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTreeArtifactValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TreeArtifact)
	}{
		{"no trees", func(a *TreeArtifact) { a.Trees = nil }},
		{"unknown feature", func(a *TreeArtifact) { a.Features[0] = "heart_rate" }},
		{"feature index", func(a *TreeArtifact) { a.Trees[0].Nodes[0].Feature = 5 }},
		{"backward child", func(a *TreeArtifact) { a.Trees[0].Nodes[0].Left = 0 }},
		{"child out of range", func(a *TreeArtifact) { a.Trees[1].Nodes[0].Right = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testTreeArtifact()
			tt.mutate(&a)
			if _, err := NewTreeBackend("", a); err == nil {
				t.Error("NewTreeBackend() succeeded, want error")
			}
		})
	}
}

func TestBuildFeatures(t *testing.T) {
	values := make([]float64, 13)
	for i := range values {
		values[i] = 100 + float64(i)*2
	}
	s := seriesOf(values...)
	s.Slots[12].Carbs = 40
	s.Slots[12].Insulin = 3

	f := BuildFeatures(s)
	checks := map[string]float64{
		"glucose":    124,
		"carbs":      40,
		"insulin":    3,
		"lag_1":      122,
		"lag_12":     100,
		"rollmean_3": 122,
		"rollstd_3":  2,
		"diff_1":     2,
		"hour":       12,
		"minute":     0,
		"dayofweek":  0,
		"iob":        3,
		"cob":        40,
	}
	for name, want := range checks {
		if got := f[name]; math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if math.Abs(f["hour_cos"]-(-1)) > 1e-9 {
		t.Errorf("hour_cos = %v, want -1", f["hour_cos"])
	}
	if len(f) != len(FeatureNames) {
		t.Errorf("got %d features, want %d", len(f), len(FeatureNames))
	}

	short := BuildFeatures(seriesOf(100, 104))
	if !math.IsNaN(short["lag_6"]) || !math.IsNaN(short["rollmean_3"]) {
		t.Error("features needing more history should be NaN")
	}
	if short["diff_1"] != 4 {
		t.Errorf("diff_1 = %v, want 4", short["diff_1"])
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadBackends(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "tree.json"), testTreeArtifact())
	writeJSON(t, filepath.Join(dir, "lstm.json"), testSequenceArtifact())
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	manifest := `backends:
  - name: sequence
    kind: lstm
    path: lstm.json
  - name: tree
    kind: gbt
    path: tree.json
  - name: broken
    kind: gbt
    path: broken.json
  - name: missing
    kind: lstm
    path: nowhere.json
  - name: disabled
    kind: gbt
    path: tree.json
    enabled: false
  - name: odd
    kind: svm
    path: tree.json
`
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	backends := LoadBackends(path)
	var names []string
	for _, b := range backends {
		names = append(names, b.Name())
	}
	want := []string{ModelSimple, ModelSequence, ModelTree}
	if len(names) != len(want) {
		t.Fatalf("backends = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("backends[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLoadBackendsWithoutManifest(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		backends := LoadBackends(path)
		if len(backends) != 1 || backends[0].Name() != ModelSimple {
			t.Errorf("LoadBackends(%q) = %d backends, want simple only", path, len(backends))
		}
	}
}

func TestLoadBackendsNormalizesLegacyNames(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "tree.json"), testTreeArtifact())
	writeJSON(t, filepath.Join(dir, "lstm.json"), testSequenceArtifact())

	manifest := `backends:
  - name: cnn_lstm
    kind: lstm
    path: lstm.json
  - name: LGB
    kind: gbt
    path: tree.json
  - name: ensemble
    kind: gbt
    path: tree.json
`
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := NewEnsemble(LoadBackends(path))
	if err != nil {
		t.Fatalf("NewEnsemble() error = %v", err)
	}
	got := e.Available()
	want := []string{ModelSimple, ModelSequence, ModelTree}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	p, err := e.Predict(context.Background(), seriesOf(120), "lgb")
	if err != nil {
		t.Fatalf("Predict(lgb) error = %v", err)
	}
	if p.Source != ModelTree {
		t.Errorf("Predict(lgb) source = %q, want tree", p.Source)
	}
}
