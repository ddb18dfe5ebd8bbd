package feature

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned when Transform or InverseTransform is called on
// a scaler that has not been fitted.
var ErrNotFitted = errors.New("feature: scaler not fitted")

// StandardScaler standardizes matrix columns to zero mean and unit variance
// and retains the fitted statistics so predictions can be mapped back to
// physical units. A scaler is fitted exactly once, on the full cleaned
// dataset, before any train/test split; both partitions are then
// transformed with the same statistics. Fitting after the split would give
// the partitions mismatched distributions.
type StandardScaler struct {
	// Mean and Std hold the per-column statistics learned by Fit. Std
	// stores 1 for zero-variance columns so transforming is a pure shift.
	Mean []float64
	Std  []float64

	fitted bool
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit learns per-column mean and population standard deviation from m.
// Fitting an already-fitted scaler is an error: the statistics are part of
// the run's state and must not silently change under the model.
func (s *StandardScaler) Fit(m *Matrix) error {
	if s.fitted {
		return errors.New("feature: scaler already fitted")
	}
	if m == nil || m.Rows() == 0 {
		return errors.New("feature: cannot fit scaler on empty matrix")
	}

	s.Mean = make([]float64, m.Cols())
	s.Std = make([]float64, m.Cols())
	for j := 0; j < m.Cols(); j++ {
		col := m.Col(j)
		s.Mean[j] = stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		if std == 0 || !finite(std) {
			std = 1
		}
		s.Std[j] = std
	}
	s.fitted = true
	return nil
}

// Transform returns a new matrix with every column standardized as
// (x - mean) / std.
func (s *StandardScaler) Transform(m *Matrix) (*Matrix, error) {
	if err := s.check(m); err != nil {
		return nil, err
	}
	out := NewMatrix(m.Rows(), m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			out.Set(i, j, (m.At(i, j)-s.Mean[j])/s.Std[j])
		}
	}
	return out, nil
}

// InverseTransform maps standardized values back to physical units as
// x*std + mean. This is how predictions and ground truth return to
// magnitude and kilometer scales for reporting.
func (s *StandardScaler) InverseTransform(m *Matrix) (*Matrix, error) {
	if err := s.check(m); err != nil {
		return nil, err
	}
	out := NewMatrix(m.Rows(), m.Cols())
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			out.Set(i, j, m.At(i, j)*s.Std[j]+s.Mean[j])
		}
	}
	return out, nil
}

func (s *StandardScaler) check(m *Matrix) error {
	if !s.fitted {
		return ErrNotFitted
	}
	if m == nil {
		return errors.New("feature: nil matrix")
	}
	if m.Cols() != len(s.Mean) {
		return fmt.Errorf("feature: matrix has %d columns, scaler fitted on %d", m.Cols(), len(s.Mean))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
