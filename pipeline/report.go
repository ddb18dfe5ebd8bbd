package pipeline

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/seismio/quakecast/feature"
)

// TargetReport scores one target column in physical units.
type TargetReport struct {
	Name string
	Unit string

	// MSE and R2 are the trained model's test-partition scores.
	MSE float64
	R2  float64

	// BaselineR2 is the ordinary least squares reference score. NaN when
	// the baseline fit failed.
	BaselineR2 float64
}

// Report summarizes one run for the console and for tests.
type Report struct {
	RowsRead    int
	RowsDropped int
	RowsUsed    int
	TrainRows   int
	TestRows    int

	RendererName string
	ModelName    string

	// Joint per-partition scores in standardized units.
	TrainMSE float64
	TrainMAE float64
	TestMSE  float64
	TestMAE  float64

	// Targets holds the per-target physical-unit scores, in the column
	// order of the target matrix.
	Targets []TargetReport

	// Epochs, BestEpoch and Stopped are zero-valued for the forest
	// variant, which has no training history.
	Epochs    int
	BestEpoch int
	Stopped   bool

	Elapsed time.Duration
}

// Print writes the run summary through the logger, one line per fact.
func (r *Report) Print(logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("Catalog: %d rows read, %d dropped, %d used", r.RowsRead, r.RowsDropped, r.RowsUsed)
	logger.Printf("Renderer: %s", r.RendererName)
	logger.Printf("Model: %s", r.ModelName)
	if r.Epochs > 0 {
		logger.Printf("Epochs: %d (best %d, early stop %t)", r.Epochs, r.BestEpoch+1, r.Stopped)
	}
	logger.Printf("Train (%d rows): MSE=%.6f MAE=%.6f (standardized)", r.TrainRows, r.TrainMSE, r.TrainMAE)
	logger.Printf("Test (%d rows): MSE=%.6f MAE=%.6f (standardized)", r.TestRows, r.TestMSE, r.TestMAE)
	for _, t := range r.Targets {
		logger.Printf("Target %s: MSE=%.4f %s^2, R2=%.4f (baseline OLS R2=%.4f)",
			t.Name, t.MSE, t.Unit, t.R2, t.BaselineR2)
	}
	logger.Printf("Completed in %v", r.Elapsed.Round(time.Millisecond))
}

// ExportPredictions writes the test-partition predictions next to their
// ground truth as CSV, in physical units with per-row absolute errors.
// Column order follows the target matrix: magnitude, then depth.
func ExportPredictions(path string, pred, actual *feature.Matrix) error {
	if pred == nil || actual == nil {
		return fmt.Errorf("no predictions to export")
	}
	if pred.Rows() != actual.Rows() || pred.Cols() != actual.Cols() {
		return fmt.Errorf("prediction shape %dx%d does not match actual %dx%d",
			pred.Rows(), pred.Cols(), actual.Rows(), actual.Cols())
	}
	if pred.Cols() != len(targetInfo) {
		return fmt.Errorf("expected %d target columns, got %d", len(targetInfo), pred.Cols())
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export CSV %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	header := []string{"idx"}
	for _, info := range targetInfo {
		header = append(header,
			"actual_"+info.name,
			"predicted_"+info.name,
			"abs_error_"+info.name,
		)
	}
	_ = w.Write(header)

	for i := range pred.Rows() {
		row := []string{strconv.Itoa(i)}
		for j := range targetInfo {
			a := actual.At(i, j)
			p := pred.At(i, j)
			row = append(row,
				strconv.FormatFloat(a, 'f', 6, 64),
				strconv.FormatFloat(p, 'f', 6, 64),
				strconv.FormatFloat(math.Abs(p-a), 'f', 6, 64),
			)
		}
		_ = w.Write(row)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write export CSV %s: %w", path, err)
	}
	return f.Close()
}
