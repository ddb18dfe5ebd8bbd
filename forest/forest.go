package forest

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/seismio/quakecast/feature"
)

// Config holds the ensemble hyperparameters. Zero values are replaced with
// defaults by New.
type Config struct {
	// Trees in the ensemble. Default: 100.
	Trees int

	// MaxDepth bounds tree growth. Default: 12.
	MaxDepth int

	// MinLeaf is the minimum number of samples in a leaf. Default: 2.
	MinLeaf int

	// FeatureFrac is the fraction of features considered at each split.
	// Default: 1 (all features; the feature space is only 3 wide).
	FeatureFrac float64

	// Seed makes bootstrap sampling and feature subsetting reproducible.
	Seed int64
}

// Forest is a bootstrap ensemble of variance-reducing regression trees
// predicting all target columns jointly. It offers the same Fit/Predict
// contract as the feed-forward network and stands in for it when the
// gradient-based trainer is not selected, with no notion of epochs,
// validation curves or early stopping.
type Forest struct {
	// Config used to grow the ensemble.
	Config Config

	trees     []*node
	inputDim  int
	outputDim int
	trained   bool
}

// node is a tree node. Interior nodes route on feature/threshold; leaves
// carry the mean target vector of their training rows.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	leaf      []float64
}

// New creates a Forest with the provided configuration.
func New(cfg Config) (*Forest, error) {
	if cfg.Trees == 0 {
		cfg.Trees = 100
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 12
	}
	if cfg.MinLeaf == 0 {
		cfg.MinLeaf = 2
	}
	if cfg.FeatureFrac == 0 {
		cfg.FeatureFrac = 1
	}

	if cfg.Trees < 0 {
		return nil, fmt.Errorf("forest: tree count %d must be positive", cfg.Trees)
	}
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("forest: max depth %d must be at least 1", cfg.MaxDepth)
	}
	if cfg.MinLeaf < 1 {
		return nil, fmt.Errorf("forest: min leaf %d must be at least 1", cfg.MinLeaf)
	}
	if cfg.FeatureFrac < 0 || cfg.FeatureFrac > 1 {
		return nil, fmt.Errorf("forest: feature fraction %v outside (0, 1]", cfg.FeatureFrac)
	}

	return &Forest{Config: cfg}, nil
}

// Name identifies the trainer variant in reports.
func (f *Forest) Name() string { return "random forest" }

// Fit grows the ensemble on scaled features x and scaled targets y. Each
// tree trains on its own bootstrap sample drawn from a per-tree seeded
// generator, so fitting is deterministic for a fixed Seed.
func (f *Forest) Fit(x, y *feature.Matrix) error {
	if x == nil || y == nil {
		return errors.New("forest: nil training matrices")
	}
	if x.Rows() != y.Rows() {
		return fmt.Errorf("forest: row count mismatch: %d features vs %d targets", x.Rows(), y.Rows())
	}
	if x.Rows() == 0 {
		return errors.New("forest: no training rows")
	}

	f.inputDim = x.Cols()
	f.outputDim = y.Cols()
	f.trees = make([]*node, f.Config.Trees)
	for t := range f.trees {
		rng := rand.New(rand.NewSource(f.Config.Seed + int64(t)))
		indices := make([]int, x.Rows())
		for i := range indices {
			indices[i] = rng.Intn(x.Rows())
		}
		f.trees[t] = f.grow(x, y, indices, 0, rng)
	}
	f.trained = true
	return nil
}

// grow recursively builds a tree over the given sample rows.
func (f *Forest) grow(x, y *feature.Matrix, indices []int, depth int, rng *rand.Rand) *node {
	if depth >= f.Config.MaxDepth || len(indices) < 2*f.Config.MinLeaf {
		return f.makeLeaf(y, indices)
	}

	feat, thr, ok := f.bestSplit(x, y, indices, rng)
	if !ok {
		return f.makeLeaf(y, indices)
	}

	var left, right []int
	for _, idx := range indices {
		if x.At(idx, feat) <= thr {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return f.makeLeaf(y, indices)
	}

	return &node{
		feature:   feat,
		threshold: thr,
		left:      f.grow(x, y, left, depth+1, rng),
		right:     f.grow(x, y, right, depth+1, rng),
	}
}

func (f *Forest) makeLeaf(y *feature.Matrix, indices []int) *node {
	mean := make([]float64, f.outputDim)
	for _, idx := range indices {
		for j := 0; j < f.outputDim; j++ {
			mean[j] += y.At(idx, j)
		}
	}
	for j := range mean {
		mean[j] /= float64(len(indices))
	}
	return &node{leaf: mean}
}

// bestSplit scans a random feature subset for the threshold minimizing the
// summed squared error of both children across all target columns. Returns
// ok=false when no feature offers a valid split (all candidate values
// equal).
func (f *Forest) bestSplit(x, y *feature.Matrix, indices []int, rng *rand.Rand) (feat int, thr float64, ok bool) {
	nFeat := int(f.Config.FeatureFrac*float64(f.inputDim) + 0.5)
	if nFeat < 1 {
		nFeat = 1
	}
	if nFeat > f.inputDim {
		nFeat = f.inputDim
	}
	candidates := rng.Perm(f.inputDim)[:nFeat]

	n := len(indices)
	minLeaf := f.Config.MinLeaf
	bestCost := 0.0
	found := false

	sorted := make([]int, n)
	sumR := make([]float64, f.outputDim)
	sumSqR := make([]float64, f.outputDim)
	sumL := make([]float64, f.outputDim)
	sumSqL := make([]float64, f.outputDim)

	for _, c := range candidates {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return x.At(sorted[a], c) < x.At(sorted[b], c)
		})

		// start with everything on the right, move rows left one at a time
		for j := 0; j < f.outputDim; j++ {
			sumL[j], sumSqL[j] = 0, 0
			sumR[j], sumSqR[j] = 0, 0
		}
		for _, idx := range sorted {
			for j := 0; j < f.outputDim; j++ {
				v := y.At(idx, j)
				sumR[j] += v
				sumSqR[j] += v * v
			}
		}

		for k := 1; k < n; k++ {
			moved := sorted[k-1]
			for j := 0; j < f.outputDim; j++ {
				v := y.At(moved, j)
				sumL[j] += v
				sumSqL[j] += v * v
				sumR[j] -= v
				sumSqR[j] -= v * v
			}

			a := x.At(sorted[k-1], c)
			b := x.At(sorted[k], c)
			if a == b || k < minLeaf || n-k < minLeaf {
				continue
			}

			cost := 0.0
			for j := 0; j < f.outputDim; j++ {
				cost += sumSqL[j] - sumL[j]*sumL[j]/float64(k)
				cost += sumSqR[j] - sumR[j]*sumR[j]/float64(n-k)
			}
			if !found || cost < bestCost {
				t := (a + b) / 2
				if t <= a || t >= b {
					// adjacent floats: fall back to the left boundary
					t = a
				}
				feat, thr, ok = c, t, true
				bestCost = cost
				found = true
			}
		}
	}
	return feat, thr, ok
}

// Predict averages per-tree leaf vectors for every input row, returning a
// matrix with one prediction row per input row. The forest must have been
// fitted.
func (f *Forest) Predict(x *feature.Matrix) (*feature.Matrix, error) {
	if !f.trained {
		return nil, errors.New("forest: not trained")
	}
	if x == nil {
		return nil, errors.New("forest: nil input matrix")
	}
	if x.Cols() != f.inputDim {
		return nil, fmt.Errorf("forest: input has %d columns, forest fitted on %d", x.Cols(), f.inputDim)
	}

	out := feature.NewMatrix(x.Rows(), f.outputDim)
	for i := 0; i < x.Rows(); i++ {
		row := x.Row(i)
		acc := out.Row(i)
		for _, t := range f.trees {
			leaf := t.lookup(row)
			for j, v := range leaf {
				acc[j] += v
			}
		}
		for j := range acc {
			acc[j] /= float64(len(f.trees))
		}
	}
	return out, nil
}

func (nd *node) lookup(row []float64) []float64 {
	for nd.leaf == nil {
		if row[nd.feature] <= nd.threshold {
			nd = nd.left
		} else {
			nd = nd.right
		}
	}
	return nd.leaf
}
