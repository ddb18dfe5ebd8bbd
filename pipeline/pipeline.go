// Package pipeline orchestrates a full catalog run: load, clean,
// visualize, scale, split, train, evaluate, report. A single Run value
// carries everything the stages produce; no package state survives
// between runs, so two runs with the same Config are independent.
package pipeline

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"time"

	"github.com/seismio/quakecast/catalog"
	"github.com/seismio/quakecast/feature"
	"github.com/seismio/quakecast/forest"
	"github.com/seismio/quakecast/metrics"
	"github.com/seismio/quakecast/neural"
	"github.com/seismio/quakecast/viz"
)

// Model is the training contract both trainer variants satisfy. Fit
// consumes aligned feature and target rows in standardized units; Predict
// returns one standardized target row per input row.
type Model interface {
	Fit(x, y *feature.Matrix) error
	Predict(x *feature.Matrix) (*feature.Matrix, error)
	Name() string
}

// Config collects every knob of a run. Zero values fall back to the
// defaults documented per field.
type Config struct {
	// DataPath is the earthquake catalog CSV. Required.
	DataPath string

	// OutDir receives figures and exports, created if absent.
	// Default: "out".
	OutDir string

	// Seed drives the split permutation and, when their own seeds are
	// zero, the trainers. Default: 42.
	Seed int64

	// TestFraction of rows held out for evaluation. Default: 0.2.
	TestFraction float64

	// Trainer selects the model variant: TrainerAuto, TrainerNetwork or
	// TrainerForest. Default: TrainerAuto.
	Trainer string

	// MapAsset is the coastline polyline file that enables the map
	// renderer. Empty or unreadable falls back to the plain scatter.
	MapAsset string

	// ExportPath, when set, receives a CSV of test-set predictions in
	// physical units.
	ExportPath string

	// Neural configures the feed-forward network variant.
	Neural neural.Config

	// Forest configures the random forest fallback.
	Forest forest.Config

	// Logger receives progress lines. Defaults to the standard logger.
	Logger *log.Logger `json:"-"`
}

// withDefaults returns a copy with zero-valued fields filled in.
func (c Config) withDefaults() Config {
	if c.OutDir == "" {
		c.OutDir = "out"
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.TestFraction == 0 {
		c.TestFraction = 0.2
	}
	if c.Trainer == "" {
		c.Trainer = TrainerAuto
	}
	if c.Neural.Seed == 0 {
		c.Neural.Seed = c.Seed
	}
	if c.Forest.Seed == 0 {
		c.Forest.Seed = c.Seed
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Run is the context threaded through the stages of one execution.
type Run struct {
	Config Config
	Caps   Capabilities

	// Catalog holds the cleaned events the run trained on.
	Catalog *catalog.Catalog

	// Features and Targets are the physical-unit matrices built from the
	// catalog; row i of both describes the same event.
	Features *feature.Matrix
	Targets  *feature.Matrix

	// FeatureScaler and TargetScaler were fitted on the full matrices
	// before splitting. TargetScaler maps predictions back to physical
	// units.
	FeatureScaler *feature.StandardScaler
	TargetScaler  *feature.StandardScaler

	// Split holds the standardized train/test partitions.
	Split *feature.Split

	Model   Model
	History *neural.History

	// TestPred and TestTruth are the test-partition predictions and
	// ground truth in physical units, filled during evaluation.
	TestPred  *feature.Matrix
	TestTruth *feature.Matrix
}

// names and physical units of the target columns, in the column order
// the feature builder emits.
var targetInfo = []struct {
	name string
	unit string
}{
	{"magnitude", "Mw"},
	{"depth", "km"},
}

// Execute performs one full run and returns its report. A catalog whose
// rows all fail cleaning returns an error wrapping catalog.ErrNoValidRows
// after the drop counts are logged; no model is trained in that case.
func Execute(cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	start := time.Now()

	if cfg.DataPath == "" {
		return nil, fmt.Errorf("no catalog path configured")
	}

	caps, err := Probe(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Printf("Loading catalog from %s", cfg.DataPath)
	raw, err := catalog.Load(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	raw.Normalize()
	clean := raw.Clean()
	logger.Printf("Catalog cleaned: %s", clean.Stats())
	if clean.Len() == 0 {
		return nil, fmt.Errorf("catalog %s: %w", cfg.DataPath, catalog.ErrNoValidRows)
	}

	figPath := filepath.Join(cfg.OutDir, "epicenters.png")
	if err := caps.Renderer.Render(clean, figPath); err != nil {
		return nil, fmt.Errorf("failed to render epicenter figure: %w", err)
	}
	logger.Printf("Epicenter figure written to %s (%s)", figPath, caps.Renderer.Name())

	features, targets, err := feature.Build(clean)
	if err != nil {
		return nil, err
	}

	featScaler := feature.NewStandardScaler()
	if err := featScaler.Fit(features); err != nil {
		return nil, fmt.Errorf("failed to fit feature scaler: %w", err)
	}
	targScaler := feature.NewStandardScaler()
	if err := targScaler.Fit(targets); err != nil {
		return nil, fmt.Errorf("failed to fit target scaler: %w", err)
	}
	scaledX, err := featScaler.Transform(features)
	if err != nil {
		return nil, err
	}
	scaledY, err := targScaler.Transform(targets)
	if err != nil {
		return nil, err
	}

	split, err := feature.TrainTestSplit(scaledX, scaledY, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	logger.Printf("Split: %d train rows, %d test rows (seed %d)",
		split.TrainX.Rows(), split.TestX.Rows(), cfg.Seed)

	run := &Run{
		Config:        cfg,
		Caps:          caps,
		Catalog:       clean,
		Features:      features,
		Targets:       targets,
		FeatureScaler: featScaler,
		TargetScaler:  targScaler,
		Split:         split,
		Model:         caps.Model,
	}

	logger.Printf("Training %s on %d rows...", run.Model.Name(), split.TrainX.Rows())
	if err := run.Model.Fit(split.TrainX, split.TrainY); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	if net, ok := run.Model.(*neural.Network); ok {
		run.History = net.History()
		logger.Printf("Training completed after %d epochs (best epoch %d)",
			run.History.Epochs(), run.History.BestEpoch+1)
	} else {
		logger.Printf("Training completed")
	}

	rep, err := evaluate(run, logger)
	if err != nil {
		return nil, err
	}
	rep.Elapsed = time.Since(start)

	if cfg.ExportPath != "" {
		if err := ExportPredictions(cfg.ExportPath, run.TestPred, run.TestTruth); err != nil {
			return nil, err
		}
		logger.Printf("Test predictions exported to %s", cfg.ExportPath)
	}
	return rep, nil
}

// evaluate scores the trained model on both partitions, converts the test
// predictions back to physical units and writes the diagnostic figures.
func evaluate(run *Run, logger *log.Logger) (*Report, error) {
	sp := run.Split
	trainPred, err := run.Model.Predict(sp.TrainX)
	if err != nil {
		return nil, fmt.Errorf("train prediction failed: %w", err)
	}
	testPred, err := run.Model.Predict(sp.TestX)
	if err != nil {
		return nil, fmt.Errorf("test prediction failed: %w", err)
	}

	rep := &Report{
		RowsRead:     run.Catalog.RowsRead,
		RowsDropped:  run.Catalog.RowsDropped,
		RowsUsed:     run.Catalog.Len(),
		TrainRows:    sp.TrainX.Rows(),
		TestRows:     sp.TestX.Rows(),
		RendererName: run.Caps.Renderer.Name(),
		ModelName:    run.Model.Name(),
	}
	if rep.TrainMSE, err = metrics.MSE(trainPred, sp.TrainY); err != nil {
		return nil, err
	}
	if rep.TrainMAE, err = metrics.MAE(trainPred, sp.TrainY); err != nil {
		return nil, err
	}
	if rep.TestMSE, err = metrics.MSE(testPred, sp.TestY); err != nil {
		return nil, err
	}
	if rep.TestMAE, err = metrics.MAE(testPred, sp.TestY); err != nil {
		return nil, err
	}

	testPhys, err := run.TargetScaler.InverseTransform(testPred)
	if err != nil {
		return nil, err
	}
	truthPhys, err := run.TargetScaler.InverseTransform(sp.TestY)
	if err != nil {
		return nil, err
	}
	run.TestPred = testPhys
	run.TestTruth = truthPhys

	// the linear reference is a comparison point, not a stage; a failure
	// leaves NaN scores in the report rather than aborting the run
	base, baseErr := baselineR2(sp)
	if baseErr != nil {
		logger.Printf("warning: baseline regression failed: %v", baseErr)
	}

	for j, info := range targetInfo {
		mse, err := metrics.ColumnMSE(testPhys, truthPhys, j)
		if err != nil {
			return nil, err
		}
		r2, err := metrics.ColumnR2(testPhys, truthPhys, j)
		if err != nil {
			return nil, err
		}
		baseScore := math.NaN()
		if baseErr == nil {
			baseScore = base[j]
		}
		rep.Targets = append(rep.Targets, TargetReport{
			Name:       info.name,
			Unit:       info.unit,
			MSE:        mse,
			R2:         r2,
			BaselineR2: baseScore,
		})

		parityPath := filepath.Join(run.Config.OutDir, "parity_"+info.name+".png")
		if err := viz.SaveParity(testPhys.Col(j), truthPhys.Col(j), info.name, info.unit, parityPath); err != nil {
			return nil, fmt.Errorf("failed to render parity figure for %s: %w", info.name, err)
		}
		logger.Printf("Parity figure written to %s", parityPath)
	}

	if run.History != nil {
		curvesPath := filepath.Join(run.Config.OutDir, "training_curves.png")
		d := viz.CurveData{
			TrainLoss: run.History.TrainLoss,
			ValLoss:   run.History.ValLoss,
			TrainMAE:  run.History.TrainMAE,
			ValMAE:    run.History.ValMAE,
		}
		if err := viz.SaveCurves(d, curvesPath); err != nil {
			return nil, fmt.Errorf("failed to render training curves: %w", err)
		}
		logger.Printf("Training curves written to %s", curvesPath)
		rep.Epochs = run.History.Epochs()
		rep.BestEpoch = run.History.BestEpoch
		rep.Stopped = run.History.Stopped
	}
	return rep, nil
}
