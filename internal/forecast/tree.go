package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
)

// TreeNode is one node of a regression tree. Internal nodes send a value
// left when it is at or below Threshold; missing values follow DefaultLeft.
type TreeNode struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	DefaultLeft bool    `json:"default_left"`
	Leaf        bool    `json:"leaf"`
	Value       float64 `json:"value"`
}

// TreeSpec is a tree in node-array form, root at index 0.
type TreeSpec struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeArtifact is an exported gradient-boosted ensemble. Leaf values already
// include the learning rate.
type TreeArtifact struct {
	BaseScore float64    `json:"base_score"`
	Features  []string   `json:"features"`
	Trees     []TreeSpec `json:"trees"`
}

// TreeBackend evaluates a boosted tree ensemble over engineered features.
type TreeBackend struct {
	name string
	a    TreeArtifact
}

// LoadTreeBackend reads a JSON artifact from disk.
func LoadTreeBackend(name, path string) (*TreeBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree artifact: %w", err)
	}
	var a TreeArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse tree artifact: %w", err)
	}
	return NewTreeBackend(name, a)
}

// NewTreeBackend checks feature names and tree structure. Children must
// point forward so evaluation always terminates.
func NewTreeBackend(name string, a TreeArtifact) (*TreeBackend, error) {
	if name == "" {
		name = ModelTree
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("artifact has no trees")
	}
	for _, f := range a.Features {
		if !slices.Contains(FeatureNames, f) {
			return nil, fmt.Errorf("unknown feature %q", f)
		}
	}
	for ti, tree := range a.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", ti)
		}
		for ni, node := range tree.Nodes {
			if node.Leaf {
				continue
			}
			if node.Feature < 0 || node.Feature >= len(a.Features) {
				return nil, fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, node.Feature)
			}
			for _, child := range []int{node.Left, node.Right} {
				if child <= ni || child >= len(tree.Nodes) {
					return nil, fmt.Errorf("tree %d node %d: invalid child %d", ti, ni, child)
				}
			}
		}
	}
	return &TreeBackend{name: name, a: a}, nil
}

func (b *TreeBackend) Name() string { return b.name }

func (b *TreeBackend) Predict(ctx context.Context, s Series) (float64, error) {
	if s.ValidCount() == 0 {
		return 0, ErrNotEnoughHistory
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	features := BuildFeatures(s)
	x := make([]float64, len(b.a.Features))
	for i, name := range b.a.Features {
		x[i] = features[name]
	}

	y := b.a.BaseScore
	for _, tree := range b.a.Trees {
		y += evalTree(tree.Nodes, x)
	}
	return y, nil
}

func evalTree(nodes []TreeNode, x []float64) float64 {
	i := 0
	for !nodes[i].Leaf {
		n := nodes[i]
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v <= n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
	return nodes[i].Value
}
