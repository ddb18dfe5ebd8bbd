package feature

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/seismio/quakecast/catalog"
)

// This file defines the numeric table the pipeline computes on and the
// projection from a cleaned catalog into row-aligned feature and target
// matrices. Features and targets built together satisfy a strict row
// correspondence: row i of both matrices always refers to the same source
// event, and every later stage (scaling, splitting) applies identical row
// operations to both so the correspondence survives end to end.

// FeatureDim is the width of the feature matrix: timestamp, latitude,
// longitude.
const FeatureDim = 3

// TargetDim is the width of the target matrix: magnitude, depth.
const TargetDim = 2

// Matrix is a dense row-major float64 table backed by a single flat buffer.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix allocates a zeroed rows-by-cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns row i as a slice view into the matrix. Mutating the slice
// mutates the matrix.
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		out[i] = m.data[i*m.cols+j]
	}
	return out
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(out.data, m.data)
	return out
}

// Dense converts the matrix to a gonum *mat.Dense, copying the data. Used
// where a stage hands rows to gonum-based models.
func (m *Matrix) Dense() *mat.Dense {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return mat.NewDense(m.rows, m.cols, data)
}

// Build projects a cleaned catalog into a feature matrix (timestamp,
// latitude, longitude) and a target matrix (magnitude, depth). Row i of
// both matrices comes from the same event. It returns
// catalog.ErrNoValidRows when the catalog has no valid events, so callers
// can report the degenerate case instead of training on nothing.
func Build(c *catalog.Catalog) (features, targets *Matrix, err error) {
	n := 0
	for _, ev := range c.Events {
		if ev.Valid {
			n++
		}
	}
	if n == 0 {
		return nil, nil, catalog.ErrNoValidRows
	}

	features = NewMatrix(n, FeatureDim)
	targets = NewMatrix(n, TargetDim)
	i := 0
	for _, ev := range c.Events {
		if !ev.Valid {
			continue
		}
		features.Set(i, 0, ev.Timestamp)
		features.Set(i, 1, ev.Latitude)
		features.Set(i, 2, ev.Longitude)
		targets.Set(i, 0, ev.Magnitude)
		targets.Set(i, 1, ev.Depth)
		i++
	}
	return features, targets, nil
}

func dimsMatch(a, b *Matrix) error {
	if a.rows != b.rows || a.cols != b.cols {
		return fmt.Errorf("matrix dimensions differ: %dx%d vs %dx%d", a.rows, a.cols, b.rows, b.cols)
	}
	return nil
}
