package pipeline

import (
	"fmt"

	"github.com/ezoic/scigo/linear"
	"gonum.org/v1/gonum/mat"

	"github.com/seismio/quakecast/feature"
)

// baselineR2 fits an ordinary least squares regression per target column
// on the scaled training partition and returns each fit's R^2 score on
// the test partition. The linear reference gives the nonlinear models a
// floor to beat in the report.
func baselineR2(sp *feature.Split) ([]float64, error) {
	xTrain := sp.TrainX.Dense()
	xTest := sp.TestX.Dense()

	scores := make([]float64, sp.TrainY.Cols())
	for j := range scores {
		yTrain := columnDense(sp.TrainY, j)
		yTest := columnDense(sp.TestY, j)

		ols := linear.NewLinearRegression()
		if err := ols.Fit(xTrain, yTrain); err != nil {
			return nil, fmt.Errorf("baseline fit for target %d: %w", j, err)
		}
		score, err := ols.Score(xTest, yTest)
		if err != nil {
			return nil, fmt.Errorf("baseline score for target %d: %w", j, err)
		}
		scores[j] = score
	}
	return scores, nil
}

// columnDense copies one column of m into an n x 1 dense matrix.
func columnDense(m *feature.Matrix, col int) *mat.Dense {
	d := mat.NewDense(m.Rows(), 1, nil)
	for i := range m.Rows() {
		d.Set(i, 0, m.At(i, col))
	}
	return d
}
