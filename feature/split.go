package feature

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Split holds the row-aligned train and test partitions produced by
// TrainTestSplit, plus the permutation that produced them.
type Split struct {
	TrainX *Matrix
	TrainY *Matrix
	TestX  *Matrix
	TestY  *Matrix

	// Perm is the row permutation applied to both input matrices: the
	// first len(TestX) entries are the test rows, the rest are train
	// rows, both in shuffled order.
	Perm []int
}

// TrainTestSplit partitions row-aligned matrices into train and test
// subsets using a single seeded permutation, so features and targets stay
// aligned and repeated runs with the same seed produce identical
// partitions. The test partition gets ceil(testFrac*n) rows and
// train+test always equals n.
func TrainTestSplit(x, y *Matrix, testFrac float64, seed int64) (*Split, error) {
	if x == nil || y == nil {
		return nil, errors.New("feature: nil matrix")
	}
	if x.Rows() != y.Rows() {
		return nil, fmt.Errorf("feature: row count mismatch: %d features vs %d targets", x.Rows(), y.Rows())
	}
	n := x.Rows()
	if n == 0 {
		return nil, errors.New("feature: cannot split empty matrices")
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, fmt.Errorf("feature: test fraction %v outside (0, 1)", testFrac)
	}

	nTest := int(math.Ceil(testFrac * float64(n)))
	nTrain := n - nTest
	if nTrain == 0 {
		return nil, fmt.Errorf("feature: %d rows leave an empty train partition at test fraction %v", n, testFrac)
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	sp := &Split{
		TrainX: NewMatrix(nTrain, x.Cols()),
		TrainY: NewMatrix(nTrain, y.Cols()),
		TestX:  NewMatrix(nTest, x.Cols()),
		TestY:  NewMatrix(nTest, y.Cols()),
		Perm:   perm,
	}
	for i, src := range perm[:nTest] {
		copy(sp.TestX.Row(i), x.Row(src))
		copy(sp.TestY.Row(i), y.Row(src))
	}
	for i, src := range perm[nTest:] {
		copy(sp.TrainX.Row(i), x.Row(src))
		copy(sp.TrainY.Row(i), y.Row(src))
	}
	return sp, nil
}
