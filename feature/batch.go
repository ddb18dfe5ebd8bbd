package feature

import (
	"fmt"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This file is the tensor interop surface: training rows leave the float64
// pipeline as flat float32 buffers with shape metadata, which convert
// directly into gomlx tensors. TrainingSet exposes a split's train
// partition through the batching interface gomlx training loops expect, so
// the same data layer can feed either the in-repo trainer or a
// gomlx-backed one.

// BatchFlat stores a batch in flat contiguous float32 buffers.
type BatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	LabelDim  int
}

// NewBatchFlat flattens row-aligned matrices into contiguous float32
// buffers.
func NewBatchFlat(x, y *Matrix) (*BatchFlat, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("nil matrix")
	}
	if x.Rows() != y.Rows() {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", x.Rows(), y.Rows())
	}
	if x.Rows() == 0 {
		return &BatchFlat{}, nil
	}

	b := &BatchFlat{
		BatchSize: x.Rows(),
		InputDim:  x.Cols(),
		LabelDim:  y.Cols(),
		Inputs:    make([]float32, x.Rows()*x.Cols()),
		Labels:    make([]float32, y.Rows()*y.Cols()),
	}
	for i := 0; i < x.Rows(); i++ {
		for j := 0; j < x.Cols(); j++ {
			b.Inputs[i*b.InputDim+j] = float32(x.At(i, j))
		}
		for j := 0; j < y.Cols(); j++ {
			b.Labels[i*b.LabelDim+j] = float32(y.At(i, j))
		}
	}
	return b, nil
}

// MakeBatchFlat flattens already-extracted float32 rows into contiguous
// buffers.
func MakeBatchFlat(inputs, labels [][]float32) (*BatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &BatchFlat{}, nil
	}

	b := &BatchFlat{
		BatchSize: len(inputs),
		InputDim:  len(inputs[0]),
		LabelDim:  len(labels[0]),
	}
	b.Inputs = make([]float32, b.BatchSize*b.InputDim)
	b.Labels = make([]float32, b.BatchSize*b.LabelDim)
	for i := range inputs {
		if len(inputs[i]) != b.InputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, b.InputDim, len(inputs[i]))
		}
		if len(labels[i]) != b.LabelDim {
			return nil, fmt.Errorf("inconsistent label dimensions at example %d: expected %d, got %d",
				i, b.LabelDim, len(labels[i]))
		}
		copy(b.Inputs[i*b.InputDim:], inputs[i])
		copy(b.Labels[i*b.LabelDim:], labels[i])
	}
	return b, nil
}

// ToTensors converts the flat buffers to gomlx tensors shaped
// [BatchSize][InputDim] and [BatchSize][LabelDim].
func (b *BatchFlat) ToTensors() (inputs, labels *tensors.Tensor, err error) {
	if b.BatchSize == 0 || b.InputDim == 0 || b.LabelDim == 0 {
		emptyInputs := make([][]float32, 0)
		emptyLabels := make([][]float32, 0)
		return tensors.FromAnyValue(emptyInputs), tensors.FromAnyValue(emptyLabels), nil
	}
	in := make([][]float32, b.BatchSize)
	la := make([][]float32, b.BatchSize)
	for i := range in {
		in[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		la[i] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	return tensors.FromAnyValue(in), tensors.FromAnyValue(la), nil
}

// TrainingSet presents a split's train partition as an in-memory dataset
// with index-based batching and a gomlx-compatible Yield.
type TrainingSet struct {
	// BatchSize used by Yield.
	BatchSize int

	x, y   *Matrix
	rng    *rand.Rand
	cursor []int
	next   int
}

// NewTrainingSet builds a training set over the split's train partition.
func NewTrainingSet(sp *Split, batchSize int, seed int64) *TrainingSet {
	if batchSize <= 0 {
		batchSize = 32
	}
	ts := &TrainingSet{
		BatchSize: batchSize,
		x:         sp.TrainX,
		y:         sp.TrainY,
		rng:       rand.New(rand.NewSource(seed)),
	}
	ts.reshuffle()
	return ts
}

func (ts *TrainingSet) reshuffle() {
	n := ts.x.Rows()
	ts.cursor = ts.rng.Perm(n)
	ts.next = 0
}

// Len returns the number of training examples.
func (ts *TrainingSet) Len() int { return ts.x.Rows() }

// Batch returns inputs and labels for the provided row indices.
func (ts *TrainingSet) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for bi, idx := range indices {
		if idx < 0 || idx >= ts.x.Rows() {
			return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, ts.x.Rows())
		}
		in := make([]float32, ts.x.Cols())
		for j := range in {
			in[j] = float32(ts.x.At(idx, j))
		}
		la := make([]float32, ts.y.Cols())
		for j := range la {
			la[j] = float32(ts.y.At(idx, j))
		}
		inputs[bi] = in
		labels[bi] = la
	}
	return inputs, labels, nil
}

// Name identifies the dataset in training logs.
func (ts *TrainingSet) Name() string { return "quakecast-train" }

// Yield returns the next shuffled batch as gomlx tensors, reshuffling at
// each epoch boundary.
func (ts *TrainingSet) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if ts.next >= len(ts.cursor) {
		ts.reshuffle()
	}
	end := ts.next + ts.BatchSize
	if end > len(ts.cursor) {
		end = len(ts.cursor)
	}
	indices := ts.cursor[ts.next:end]
	ts.next = end

	in, la, err := ts.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	flat, err := MakeBatchFlat(in, la)
	if err != nil {
		return nil, nil, nil, err
	}
	inT, laT, err := flat.ToTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{inT}, []*tensors.Tensor{laT}, nil
}

// Restart rewinds the dataset to the start of an epoch.
func (ts *TrainingSet) Restart() error {
	ts.reshuffle()
	return nil
}
