// Package metrics computes the regression quality measures the evaluator
// reports: mean squared error and mean absolute error over whole matrices,
// and per-column MSE and R² for reporting each target in its own units.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/seismio/quakecast/feature"
)

// MSE returns the mean squared error across every cell of the two
// matrices.
func MSE(pred, actual *feature.Matrix) (float64, error) {
	if err := check(pred, actual); err != nil {
		return 0, err
	}
	var sum float64
	cells := 0
	for i := 0; i < pred.Rows(); i++ {
		for j := 0; j < pred.Cols(); j++ {
			d := pred.At(i, j) - actual.At(i, j)
			sum += d * d
			cells++
		}
	}
	return sum / float64(cells), nil
}

// MAE returns the mean absolute error across every cell of the two
// matrices.
func MAE(pred, actual *feature.Matrix) (float64, error) {
	if err := check(pred, actual); err != nil {
		return 0, err
	}
	var sum float64
	cells := 0
	for i := 0; i < pred.Rows(); i++ {
		for j := 0; j < pred.Cols(); j++ {
			d := pred.At(i, j) - actual.At(i, j)
			if d < 0 {
				d = -d
			}
			sum += d
			cells++
		}
	}
	return sum / float64(cells), nil
}

// ColumnMSE returns the mean squared error of a single column.
func ColumnMSE(pred, actual *feature.Matrix, col int) (float64, error) {
	if err := checkCol(pred, actual, col); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < pred.Rows(); i++ {
		d := pred.At(i, col) - actual.At(i, col)
		sum += d * d
	}
	return sum / float64(pred.Rows()), nil
}

// ColumnR2 returns the coefficient of determination of a single column:
// the fraction of the actual values' variance the predictions explain.
// When the actual column has zero variance R² is not defined and the
// result is NaN; reports print it as such.
func ColumnR2(pred, actual *feature.Matrix, col int) (float64, error) {
	if err := checkCol(pred, actual, col); err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(pred.Col(col), actual.Col(col), nil), nil
}

func check(pred, actual *feature.Matrix) error {
	if pred == nil || actual == nil {
		return errors.New("metrics: nil matrix")
	}
	if pred.Rows() != actual.Rows() || pred.Cols() != actual.Cols() {
		return fmt.Errorf("metrics: dimension mismatch: %dx%d vs %dx%d",
			pred.Rows(), pred.Cols(), actual.Rows(), actual.Cols())
	}
	if pred.Rows() == 0 {
		return errors.New("metrics: empty matrices")
	}
	return nil
}

func checkCol(pred, actual *feature.Matrix, col int) error {
	if err := check(pred, actual); err != nil {
		return err
	}
	if col < 0 || col >= pred.Cols() {
		return fmt.Errorf("metrics: column %d out of range [0, %d)", col, pred.Cols())
	}
	return nil
}
