package scoring

import (
	"fmt"
	"math"
)

// Tree is one isolation tree in flat node-array form: index i describes one
// node, children reference node indices, -1 marks a leaf. Size carries the
// training sample count that reached each node, needed for the truncated-path
// adjustment at leaves.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Size      []int     `json:"size"`
}

// Forest is a serialized isolation forest plus the decision offset the
// training job calibrated from its contamination setting.
type Forest struct {
	NEstimators int     `json:"n_estimators"`
	MaxSamples  int     `json:"max_samples"`
	Offset      float64 `json:"offset"`
	Trees       []Tree  `json:"trees"`
}

// Decision evaluates the decision function for one standardized sample. More
// negative means more anomalous; a negative value is an anomaly.
func (f *Forest) Decision(sample []float64) float64 {
	total := 0.0
	for i := range f.Trees {
		total += f.Trees[i].pathLength(sample)
	}
	avgPath := total / float64(len(f.Trees))

	// s(x, n) = 2^(-E(h(x))/c(n)); score_samples = -s; decision = -s - offset.
	s := math.Pow(2, -avgPath/pathLengthAdjustment(f.MaxSamples))
	return -s - f.Offset
}

func (t *Tree) pathLength(sample []float64) float64 {
	node := 0
	depth := 0.0
	for t.Left[node] != -1 {
		feature := t.Feature[node]
		if feature < 0 || feature >= len(sample) {
			break
		}
		// Values equal to the threshold follow the left branch.
		if sample[feature] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
		depth++
	}
	return depth + pathLengthAdjustment(t.Size[node])
}

// pathLengthAdjustment is c(n), the expected path length of an unsuccessful
// BST search over n samples, used to credit truncated branches.
func pathLengthAdjustment(n int) float64 {
	if n > 2 {
		fn := float64(n)
		return 2.0*(math.Log(fn-1)+0.5772156649) - 2.0*(fn-1)/fn
	}
	if n == 2 {
		return 1.0
	}
	return 0.0
}

func (f *Forest) validate(features int) error {
	if f.MaxSamples < 2 {
		return fmt.Errorf("max_samples %d too small", f.MaxSamples)
	}
	for ti, tree := range f.Trees {
		nodes := len(tree.Feature)
		if nodes == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		if len(tree.Threshold) != nodes || len(tree.Left) != nodes ||
			len(tree.Right) != nodes || len(tree.Size) != nodes {
			return fmt.Errorf("tree %d node arrays are ragged", ti)
		}
		for i := 0; i < nodes; i++ {
			if tree.Left[i] == -1 {
				continue
			}
			if tree.Left[i] < 0 || tree.Left[i] >= nodes ||
				tree.Right[i] < 0 || tree.Right[i] >= nodes {
				return fmt.Errorf("tree %d node %d has out-of-range children", ti, i)
			}
			// Children must sit strictly after their parent. The exporter
			// writes nodes in preorder, and the ordering is what guarantees
			// traversal terminates; a cycle would loop pathLength forever.
			if tree.Left[i] <= i || tree.Right[i] <= i {
				return fmt.Errorf("tree %d node %d children are not in preorder", ti, i)
			}
			if tree.Feature[i] < 0 || tree.Feature[i] >= features {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, i, tree.Feature[i])
			}
		}
	}
	return nil
}
