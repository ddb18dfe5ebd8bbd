package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/seismio/quakecast/feature"
)

// Config holds configurable hyperparameters for the feed-forward regressor
// and its training loop. Zero values are replaced with defaults by New.
type Config struct {
	// HiddenSizes is the list of hidden layer widths. Default: [128, 64, 32].
	HiddenSizes []int

	// InputDim is the dimensionality of the input feature vector.
	// Default: 3 (timestamp, latitude, longitude).
	InputDim int

	// OutputDim is the number of regression outputs. Default: 2
	// (magnitude, depth).
	OutputDim int

	// LearningRate for the Adam optimizer. Default: 0.001.
	LearningRate float64

	// Epochs caps the number of passes over the training partition.
	// Early stopping usually ends training sooner. Default: 100.
	Epochs int

	// BatchSize for mini-batch updates. Default: 32.
	BatchSize int

	// Dropout is the probability of zeroing a hidden activation during
	// training. Applied after each hidden layer. Default: 0.2; set
	// negative to disable.
	Dropout float64

	// ValFraction of training rows held out to drive early stopping.
	// Default: 0.2.
	ValFraction float64

	// Patience is the number of consecutive epochs without validation
	// improvement tolerated before stopping. Default: 10.
	Patience int

	// Seed controls weight initialization, shuffling and dropout masks.
	// If zero, a time-based seed is used.
	Seed int64

	// Adam hyperparameters (defaults below if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// History records per-epoch training diagnostics for the curve plots.
// All slices have one entry per completed epoch.
type History struct {
	TrainLoss []float64
	TrainMAE  []float64
	ValLoss   []float64
	ValMAE    []float64

	// BestEpoch is the zero-based epoch whose weights the network kept.
	BestEpoch int

	// Stopped is true when patience ran out before the epoch cap.
	Stopped bool
}

// Epochs returns the number of completed epochs.
func (h *History) Epochs() int { return len(h.TrainLoss) }

// Network is a small feed-forward regressor trained by mini-batch Adam on
// a joint mean-squared error across all outputs. It predicts in the
// standardized units it was trained in; callers map predictions back to
// physical units with the target scaler.
type Network struct {
	// Config used for training and initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1.
	weights [][][]float64

	// biases[l] is a vector of length out for layer l -> l+1.
	biases [][]float64

	// Adam first and second moment estimates, same shapes as the
	// parameters they track.
	mW, vW [][][]float64
	mB, vB [][]float64

	// steps counts Adam updates for bias correction.
	steps int

	rng     *rand.Rand
	trained bool
	history *History
}

// New creates a Network with the provided configuration, filling defaults
// and initializing weights.
func New(cfg Config) (*Network, error) {
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{128, 64, 32}
	}
	if cfg.InputDim == 0 {
		cfg.InputDim = feature.FeatureDim
	}
	if cfg.OutputDim == 0 {
		cfg.OutputDim = feature.TargetDim
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 100
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.Dropout == 0 {
		cfg.Dropout = 0.2
	}
	if cfg.Dropout < 0 {
		cfg.Dropout = 0
	}
	if cfg.ValFraction == 0 {
		cfg.ValFraction = 0.2
	}
	if cfg.Patience == 0 {
		cfg.Patience = 10
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}

	if cfg.Dropout >= 1 {
		return nil, fmt.Errorf("neural: dropout %v must be below 1", cfg.Dropout)
	}
	if cfg.ValFraction < 0 || cfg.ValFraction >= 1 {
		return nil, fmt.Errorf("neural: validation fraction %v outside [0, 1)", cfg.ValFraction)
	}
	for _, h := range cfg.HiddenSizes {
		if h <= 0 {
			return nil, fmt.Errorf("neural: hidden layer size %d must be positive", h)
		}
	}

	n := &Network{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.OutputDim)
	n.layerSizes = sizes

	L := len(sizes) - 1
	n.weights = make([][][]float64, L)
	n.biases = make([][]float64, L)
	n.mW = make([][][]float64, L)
	n.vW = make([][][]float64, L)
	n.mB = make([][]float64, L)
	n.vB = make([][]float64, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		w := make([][]float64, out)
		mw := make([][]float64, out)
		vw := make([][]float64, out)
		for j := 0; j < out; j++ {
			row := make([]float64, in)
			for i := 0; i < in; i++ {
				// Xavier/Glorot uniform initialization
				row[i] = (n.rng.Float64()*2 - 1) * limit
			}
			w[j] = row
			mw[j] = make([]float64, in)
			vw[j] = make([]float64, in)
		}
		n.weights[l] = w
		n.mW[l] = mw
		n.vW[l] = vw
		n.biases[l] = make([]float64, out)
		n.mB[l] = make([]float64, out)
		n.vB[l] = make([]float64, out)
	}

	return n, nil
}

// Name identifies the trainer variant in reports.
func (n *Network) Name() string { return "feed-forward network" }

// History returns the per-epoch diagnostics of the last Fit. Nil before
// training.
func (n *Network) History() *History { return n.history }

func reluInPlace(x []float64) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle runs one example through the network, returning the
// pre-activation and activation vectors per layer (acts[0] is the input).
// When masks is non-nil it holds one inverted-dropout mask per hidden
// layer, already scaled by 1/(1-p), and the masked activations are what
// flow forward. A nil masks runs the inference path.
func (n *Network) forwardSingle(input []float64, masks [][]float64) (preActs, acts [][]float64, err error) {
	if len(input) != n.layerSizes[0] {
		return nil, nil, fmt.Errorf("neural: input has dimension %d, want %d", len(input), n.layerSizes[0])
	}
	L := len(n.weights)
	acts = make([][]float64, L+1)
	acts[0] = make([]float64, len(input))
	copy(acts[0], input)

	preActs = make([][]float64, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		outDim := len(n.biases[l])
		pre := make([]float64, outDim)
		W := n.weights[l]
		b := n.biases[l]
		for j := 0; j < outDim; j++ {
			sum := b[j]
			row := W[j]
			for i := range inVec {
				sum += row[i] * inVec[i]
			}
			pre[j] = sum
		}
		preActs[l] = pre

		// ReLU and dropout on hidden layers, linear output layer
		act := make([]float64, outDim)
		copy(act, pre)
		if l < L-1 {
			reluInPlace(act)
			if masks != nil {
				for j := range act {
					act[j] *= masks[l][j]
				}
			}
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// dropoutMasks samples one inverted-dropout mask per hidden layer. Returns
// nil when dropout is disabled.
func (n *Network) dropoutMasks() [][]float64 {
	p := n.Config.Dropout
	if p <= 0 {
		return nil
	}
	scale := 1 / (1 - p)
	masks := make([][]float64, len(n.weights)-1)
	for l := range masks {
		mask := make([]float64, n.layerSizes[l+1])
		for j := range mask {
			if n.rng.Float64() >= p {
				mask[j] = scale
			}
		}
		masks[l] = mask
	}
	return masks
}

// Fit trains the network on scaled features x and scaled targets y. It
// carves a validation subset from the shuffled rows, runs mini-batch Adam
// on the joint MSE across both outputs, and stops early once validation
// loss has not improved for Patience consecutive epochs, restoring the
// best epoch's weights before returning. When the training set is too
// small to carve a validation row, training loss drives the stop and the
// validation curves mirror it. Per-epoch diagnostics are available from
// History afterwards.
func (n *Network) Fit(x, y *feature.Matrix) error {
	if x == nil || y == nil {
		return errors.New("neural: nil training matrices")
	}
	if x.Rows() != y.Rows() {
		return fmt.Errorf("neural: row count mismatch: %d features vs %d targets", x.Rows(), y.Rows())
	}
	if x.Rows() == 0 {
		return errors.New("neural: no training rows")
	}
	if x.Cols() != n.layerSizes[0] {
		return fmt.Errorf("neural: features have %d columns, network expects %d", x.Cols(), n.layerSizes[0])
	}
	if y.Cols() != n.layerSizes[len(n.layerSizes)-1] {
		return fmt.Errorf("neural: targets have %d columns, network expects %d", y.Cols(), n.layerSizes[len(n.layerSizes)-1])
	}

	// carve the validation subset from a one-time shuffle
	rows := x.Rows()
	carve := n.rng.Perm(rows)
	nVal := int(n.Config.ValFraction * float64(rows))
	if nVal >= rows {
		nVal = rows - 1
	}
	valX, valY := subset(x, y, carve[:nVal])
	trnX, trnY := subset(x, y, carve[nVal:])

	nTrain := trnX.Rows()
	indices := make([]int, nTrain)
	for i := range indices {
		indices[i] = i
	}

	hist := &History{}
	bestVal := math.Inf(1)
	bestEpoch := 0
	var bestW [][][]float64
	var bestB [][]float64
	stale := 0

	for ep := 0; ep < n.Config.Epochs; ep++ {
		n.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for bstart := 0; bstart < nTrain; bstart += n.Config.BatchSize {
			bend := bstart + n.Config.BatchSize
			if bend > nTrain {
				bend = nTrain
			}
			if err := n.trainBatch(trnX, trnY, indices[bstart:bend]); err != nil {
				return err
			}
		}

		trainLoss, trainMAE := n.evalLoss(trnX, trnY)
		valLoss, valMAE := trainLoss, trainMAE
		if valX.Rows() > 0 {
			valLoss, valMAE = n.evalLoss(valX, valY)
		}
		if !finite(trainLoss) || !finite(valLoss) {
			return fmt.Errorf("neural: training diverged at epoch %d (loss %v)", ep, trainLoss)
		}
		hist.TrainLoss = append(hist.TrainLoss, trainLoss)
		hist.TrainMAE = append(hist.TrainMAE, trainMAE)
		hist.ValLoss = append(hist.ValLoss, valLoss)
		hist.ValMAE = append(hist.ValMAE, valMAE)

		if valLoss < bestVal {
			bestVal = valLoss
			bestEpoch = ep
			bestW, bestB = n.cloneParams()
			stale = 0
		} else {
			stale++
			if stale >= n.Config.Patience {
				hist.Stopped = true
				break
			}
		}
	}

	if bestW != nil {
		n.weights = bestW
		n.biases = bestB
	}
	hist.BestEpoch = bestEpoch
	n.history = hist
	n.trained = true
	return nil
}

// trainBatch accumulates gradients of the joint MSE over one mini-batch
// and applies a single Adam update.
func (n *Network) trainBatch(x, y *feature.Matrix, batch []int) error {
	batchN := len(batch)
	if batchN == 0 {
		return nil
	}

	L := len(n.weights)
	gradW := make([][][]float64, L)
	gradB := make([][]float64, L)
	for l := 0; l < L; l++ {
		outDim := len(n.biases[l])
		inDim := len(n.weights[l][0])
		gradW[l] = make([][]float64, outDim)
		for j := 0; j < outDim; j++ {
			gradW[l][j] = make([]float64, inDim)
		}
		gradB[l] = make([]float64, outDim)
	}

	outDim := n.layerSizes[len(n.layerSizes)-1]
	for _, idx := range batch {
		masks := n.dropoutMasks()
		preActs, acts, err := n.forwardSingle(x.Row(idx), masks)
		if err != nil {
			return err
		}

		// dLoss/dOutput for the joint MSE over all outputs
		outAct := acts[len(acts)-1]
		label := y.Row(idx)
		delta := make([]float64, outDim)
		for j := range delta {
			delta[j] = 2 * (outAct[j] - label[j]) / float64(outDim)
		}

		for l := L - 1; l >= 0; l-- {
			inAct := acts[l]
			for j, dj := range delta {
				gradB[l][j] += dj
				gw := gradW[l][j]
				for i := range inAct {
					gw[i] += dj * inAct[i]
				}
			}

			if l > 0 {
				prevLen := len(n.weights[l][0])
				newDelta := make([]float64, prevLen)
				for i := 0; i < prevLen; i++ {
					var sum float64
					for j, dj := range delta {
						sum += n.weights[l][j][i] * dj
					}
					// ReLU derivative, with the dropout mask folded in
					if preActs[l-1][i] <= 0 {
						sum = 0
					} else if masks != nil {
						sum *= masks[l-1][i]
					}
					newDelta[i] = sum
				}
				delta = newDelta
			}
		}
	}

	n.adamStep(gradW, gradB, 1/float64(batchN))
	return nil
}

// adamStep applies one bias-corrected Adam update using the accumulated
// gradients scaled by invBatch.
func (n *Network) adamStep(gradW [][][]float64, gradB [][]float64, invBatch float64) {
	n.steps++
	t := float64(n.steps)
	cfg := n.Config
	c1 := 1 - math.Pow(cfg.Beta1, t)
	c2 := 1 - math.Pow(cfg.Beta2, t)

	for l := range n.weights {
		for j := range n.weights[l] {
			for i := range n.weights[l][j] {
				g := gradW[l][j][i] * invBatch
				n.mW[l][j][i] = cfg.Beta1*n.mW[l][j][i] + (1-cfg.Beta1)*g
				n.vW[l][j][i] = cfg.Beta2*n.vW[l][j][i] + (1-cfg.Beta2)*g*g
				mHat := n.mW[l][j][i] / c1
				vHat := n.vW[l][j][i] / c2
				n.weights[l][j][i] -= cfg.LearningRate * mHat / (math.Sqrt(vHat) + cfg.Epsilon)
			}
			g := gradB[l][j] * invBatch
			n.mB[l][j] = cfg.Beta1*n.mB[l][j] + (1-cfg.Beta1)*g
			n.vB[l][j] = cfg.Beta2*n.vB[l][j] + (1-cfg.Beta2)*g*g
			mHat := n.mB[l][j] / c1
			vHat := n.vB[l][j] / c2
			n.biases[l][j] -= cfg.LearningRate * mHat / (math.Sqrt(vHat) + cfg.Epsilon)
		}
	}
}

// evalLoss computes joint MSE and MAE over all cells with the inference
// forward pass (no dropout).
func (n *Network) evalLoss(x, y *feature.Matrix) (mse, mae float64) {
	if x.Rows() == 0 {
		return 0, 0
	}
	var sumSq, sumAbs float64
	cells := 0
	for i := 0; i < x.Rows(); i++ {
		_, acts, err := n.forwardSingle(x.Row(i), nil)
		if err != nil {
			return math.NaN(), math.NaN()
		}
		out := acts[len(acts)-1]
		label := y.Row(i)
		for j := range out {
			d := out[j] - label[j]
			sumSq += d * d
			if d < 0 {
				d = -d
			}
			sumAbs += d
			cells++
		}
	}
	return sumSq / float64(cells), sumAbs / float64(cells)
}

// Predict maps scaled feature rows to scaled predictions, one output row
// per input row. The network must have been fitted.
func (n *Network) Predict(x *feature.Matrix) (*feature.Matrix, error) {
	if !n.trained {
		return nil, errors.New("neural: network not trained")
	}
	if x == nil {
		return nil, errors.New("neural: nil input matrix")
	}
	if x.Cols() != n.layerSizes[0] {
		return nil, fmt.Errorf("neural: input has %d columns, network expects %d", x.Cols(), n.layerSizes[0])
	}

	out := feature.NewMatrix(x.Rows(), n.layerSizes[len(n.layerSizes)-1])
	for i := 0; i < x.Rows(); i++ {
		_, acts, err := n.forwardSingle(x.Row(i), nil)
		if err != nil {
			return nil, err
		}
		copy(out.Row(i), acts[len(acts)-1])
	}
	return out, nil
}

func (n *Network) cloneParams() ([][][]float64, [][]float64) {
	w := make([][][]float64, len(n.weights))
	b := make([][]float64, len(n.biases))
	for l := range n.weights {
		w[l] = make([][]float64, len(n.weights[l]))
		for j := range n.weights[l] {
			row := make([]float64, len(n.weights[l][j]))
			copy(row, n.weights[l][j])
			w[l][j] = row
		}
		b[l] = make([]float64, len(n.biases[l]))
		copy(b[l], n.biases[l])
	}
	return w, b
}

// subset materializes the selected rows of row-aligned matrices.
func subset(x, y *feature.Matrix, rows []int) (*feature.Matrix, *feature.Matrix) {
	sx := feature.NewMatrix(len(rows), x.Cols())
	sy := feature.NewMatrix(len(rows), y.Cols())
	for i, src := range rows {
		copy(sx.Row(i), x.Row(src))
		copy(sy.Row(i), y.Row(src))
	}
	return sx, sy
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
