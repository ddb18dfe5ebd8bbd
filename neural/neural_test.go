package neural

import (
	"math"
	"testing"

	"github.com/seismio/quakecast/feature"
)

// learnableData builds n rows of a smooth function of three standardized
// inputs so a small network can fit it quickly.
func learnableData(n int) (*feature.Matrix, *feature.Matrix) {
	x := feature.NewMatrix(n, 3)
	y := feature.NewMatrix(n, 2)
	for i := 0; i < n; i++ {
		a := math.Sin(float64(i) * 0.7)
		b := math.Cos(float64(i) * 1.3)
		c := math.Sin(float64(i)*0.35 + 1)
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		x.Set(i, 2, c)
		y.Set(i, 0, 0.5*a-b)
		y.Set(i, 1, 0.8*c)
	}
	return x, y
}

func predictionMSE(t *testing.T, n *Network, x, y *feature.Matrix) float64 {
	t.Helper()
	pred, err := n.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	var sum float64
	cells := 0
	for i := 0; i < pred.Rows(); i++ {
		for j := 0; j < pred.Cols(); j++ {
			d := pred.At(i, j) - y.At(i, j)
			sum += d * d
			cells++
		}
	}
	return sum / float64(cells)
}

// TestFitReducesMSE trains two identically seeded networks for different
// epoch budgets and expects the longer run to fit the data better.
func TestFitReducesMSE(t *testing.T) {
	x, y := learnableData(160)

	short, err := New(Config{
		HiddenSizes:  []int{16, 8},
		LearningRate: 0.01,
		Epochs:       1,
		BatchSize:    16,
		Dropout:      -1,
		Patience:     100,
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := short.Fit(x, y); err != nil {
		t.Fatalf("Fit (1 epoch) error: %v", err)
	}

	long, err := New(Config{
		HiddenSizes:  []int{16, 8},
		LearningRate: 0.01,
		Epochs:       60,
		BatchSize:    16,
		Dropout:      -1,
		Patience:     100,
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := long.Fit(x, y); err != nil {
		t.Fatalf("Fit (60 epochs) error: %v", err)
	}

	mseShort := predictionMSE(t, short, x, y)
	mseLong := predictionMSE(t, long, x, y)
	t.Logf("mse after 1 epoch=%.6f after 60 epochs=%.6f", mseShort, mseLong)
	if !(mseLong < mseShort) {
		t.Fatalf("expected longer training to reduce mse: 1 epoch=%.6f 60 epochs=%.6f", mseShort, mseLong)
	}

	pred, err := long.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if pred.Rows() != x.Rows() || pred.Cols() != 2 {
		t.Fatalf("unexpected prediction shape: %dx%d", pred.Rows(), pred.Cols())
	}
	for i := 0; i < pred.Rows(); i++ {
		for j := 0; j < pred.Cols(); j++ {
			if v := pred.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite prediction at %d,%d: %v", i, j, v)
			}
		}
	}
}

// TestFitHistory checks the per-epoch diagnostics: one entry per epoch,
// finite values, and BestEpoch pointing at the validation minimum.
func TestFitHistory(t *testing.T) {
	x, y := learnableData(100)

	n, err := New(Config{
		HiddenSizes:  []int{12},
		LearningRate: 0.01,
		Epochs:       20,
		BatchSize:    10,
		Dropout:      -1,
		Patience:     100, // never triggers inside the cap
		Seed:         7,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := n.Fit(x, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}

	h := n.History()
	if h == nil {
		t.Fatalf("History is nil after Fit")
	}
	if h.Epochs() != 20 {
		t.Fatalf("expected 20 epochs, got %d", h.Epochs())
	}
	if len(h.TrainMAE) != 20 || len(h.ValLoss) != 20 || len(h.ValMAE) != 20 {
		t.Fatalf("history slices have inconsistent lengths: %+v", h)
	}
	if h.Stopped {
		t.Fatalf("early stop should not trigger with patience above the epoch cap")
	}

	best := 0
	for ep, v := range h.ValLoss {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite validation loss at epoch %d", ep)
		}
		if v < h.ValLoss[best] {
			best = ep
		}
	}
	if h.BestEpoch != best {
		t.Fatalf("BestEpoch = %d, validation minimum at %d", h.BestEpoch, best)
	}
}

// TestEarlyStopping feeds unlearnable noise so validation loss cannot keep
// improving and patience must run out before the epoch cap.
func TestEarlyStopping(t *testing.T) {
	const n = 60
	x := feature.NewMatrix(n, 3)
	y := feature.NewMatrix(n, 2)
	// deterministic pseudo-noise targets over constant features
	fract := func(v float64) float64 { return v - math.Floor(v) }
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, -1)
		x.Set(i, 2, 0.5)
		y.Set(i, 0, fract(math.Sin(float64(i)*12.9898)*43758.5453))
		y.Set(i, 1, fract(math.Sin(float64(i)*78.233)*12543.8765))
	}

	net, err := New(Config{
		HiddenSizes:  []int{8},
		LearningRate: 0.05,
		Epochs:       500,
		BatchSize:    8,
		Dropout:      -1,
		ValFraction:  0.25,
		Patience:     3,
		Seed:         11,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := net.Fit(x, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}

	h := net.History()
	if !h.Stopped {
		t.Fatalf("expected early stop on noise targets within %d epochs", 500)
	}
	if h.Epochs() >= 500 {
		t.Fatalf("early stop did not shorten training: %d epochs", h.Epochs())
	}
	if h.BestEpoch >= h.Epochs() {
		t.Fatalf("BestEpoch %d out of range for %d epochs", h.BestEpoch, h.Epochs())
	}
}

// TestFitDeterministicSeed verifies two identically configured networks
// produce identical predictions, dropout included.
func TestFitDeterministicSeed(t *testing.T) {
	x, y := learnableData(80)

	cfg := Config{
		HiddenSizes:  []int{10, 6},
		LearningRate: 0.01,
		Epochs:       10,
		BatchSize:    8,
		Dropout:      0.2,
		Patience:     50,
		Seed:         99,
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := a.Fit(x, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	if err := b.Fit(x, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}

	pa, err := a.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	pb, err := b.Predict(x)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	for i := 0; i < pa.Rows(); i++ {
		for j := 0; j < pa.Cols(); j++ {
			if pa.At(i, j) != pb.At(i, j) {
				t.Fatalf("same seed produced different predictions at %d,%d", i, j)
			}
		}
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{Dropout: 1.5}); err == nil {
		t.Fatalf("expected error for dropout >= 1")
	}
	if _, err := New(Config{ValFraction: 1}); err == nil {
		t.Fatalf("expected error for validation fraction of 1")
	}
	if _, err := New(Config{HiddenSizes: []int{0}}); err == nil {
		t.Fatalf("expected error for zero-width hidden layer")
	}

	n, err := New(Config{Seed: 1})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if got := n.Config.HiddenSizes; len(got) != 3 || got[0] != 128 || got[1] != 64 || got[2] != 32 {
		t.Fatalf("unexpected default hidden sizes: %v", got)
	}
	if n.Config.Epochs != 100 || n.Config.BatchSize != 32 || n.Config.Patience != 10 {
		t.Fatalf("unexpected defaults: %+v", n.Config)
	}
}

func TestFitAndPredictErrors(t *testing.T) {
	x, y := learnableData(10)

	n, err := New(Config{HiddenSizes: []int{4}, Seed: 1, Epochs: 2})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := n.Predict(x); err == nil {
		t.Fatalf("expected error predicting before training")
	}

	bad := feature.NewMatrix(10, 5)
	if err := n.Fit(bad, y); err == nil {
		t.Fatalf("expected error for feature width mismatch")
	}
	shortY := feature.NewMatrix(4, 2)
	if err := n.Fit(x, shortY); err == nil {
		t.Fatalf("expected error for row count mismatch")
	}
	if err := n.Fit(feature.NewMatrix(0, 3), feature.NewMatrix(0, 2)); err == nil {
		t.Fatalf("expected error for empty training data")
	}

	if err := n.Fit(x, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	if _, err := n.Predict(bad); err == nil {
		t.Fatalf("expected error for prediction width mismatch")
	}
}
