package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/seismio/quakecast/catalog"
	"github.com/seismio/quakecast/feature"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// catalogCSV builds n valid rows with varied coordinates and magnitudes.
func catalogCSV(n int) string {
	var b strings.Builder
	b.WriteString("Date,Time,Latitude,Longitude,Depth,Magnitude\n")
	for i := range n {
		fmt.Fprintf(&b, "01/%02d/1975,%02d:30:00,%.2f,%.2f,%.1f,%.1f\n",
			i%27+1,
			i%24,
			float64(i*7%120)-60,
			float64(i*13%340)-170,
			10+float64(i%50)*3,
			4.5+float64(i%40)*0.1,
		)
	}
	return b.String()
}

const degenerateCSV = `Date,Time,Latitude,Longitude,Depth,Magnitude
1975-01-02,13:44:18,19.2,145.6,30.0,6.0
1975-02-03,08:10:00,1.8,127.3,80.0,5.8
1975-03-04,21:02:05,-20.5,-173.9,20.0,6.2
`

const coastlineSample = `> outline
-10 0
-10 10
0 10
0 0
`

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func finiteVal(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func requireFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("file at %s is empty", path)
	}
}

func TestProbeRendererSelection(t *testing.T) {
	tmp := t.TempDir()
	asset := filepath.Join(tmp, "coast.txt")
	writeFile(t, asset, coastlineSample)

	caps, err := Probe(Config{Trainer: TrainerAuto, MapAsset: asset}, quietLogger())
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if caps.Renderer.Name() != "map projection" {
		t.Fatalf("valid asset should select the map renderer, got %s", caps.Renderer.Name())
	}

	caps, err = Probe(Config{Trainer: TrainerAuto, MapAsset: filepath.Join(tmp, "missing.txt")}, quietLogger())
	if err != nil {
		t.Fatalf("missing asset must degrade, not fail: %v", err)
	}
	if caps.Renderer.Name() != "plain scatter" {
		t.Fatalf("missing asset should select the scatter fallback, got %s", caps.Renderer.Name())
	}

	caps, err = Probe(Config{Trainer: TrainerAuto}, quietLogger())
	if err != nil {
		t.Fatalf("Probe error with no asset: %v", err)
	}
	if caps.Renderer.Name() != "plain scatter" {
		t.Fatalf("no asset should select the scatter fallback, got %s", caps.Renderer.Name())
	}
}

func TestProbeTrainerSelection(t *testing.T) {
	for _, mode := range []string{"", TrainerAuto, TrainerNetwork} {
		caps, err := Probe(Config{Trainer: mode}, quietLogger())
		if err != nil {
			t.Fatalf("Probe(%q) error: %v", mode, err)
		}
		if caps.Model.Name() != "feed-forward network" {
			t.Fatalf("mode %q should select the network, got %s", mode, caps.Model.Name())
		}
	}

	caps, err := Probe(Config{Trainer: TrainerForest}, quietLogger())
	if err != nil {
		t.Fatalf("Probe(forest) error: %v", err)
	}
	if caps.Model.Name() != "random forest" {
		t.Fatalf("forest mode should select the forest, got %s", caps.Model.Name())
	}

	if _, err := Probe(Config{Trainer: "banana"}, quietLogger()); err == nil {
		t.Fatalf("expected error for unknown trainer mode")
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "catalog.csv")
	writeFile(t, dataPath, catalogCSV(10))
	outDir := filepath.Join(tmp, "out")
	exportPath := filepath.Join(outDir, "predictions.csv")

	rep, err := Execute(Config{
		DataPath:   dataPath,
		OutDir:     outDir,
		ExportPath: exportPath,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if rep.RowsRead != 10 || rep.RowsDropped != 0 || rep.RowsUsed != 10 {
		t.Fatalf("row counts = %d read, %d dropped, %d used; want 10, 0, 10",
			rep.RowsRead, rep.RowsDropped, rep.RowsUsed)
	}
	if rep.TrainRows != 8 || rep.TestRows != 2 {
		t.Fatalf("split = %d/%d, want 8/2", rep.TrainRows, rep.TestRows)
	}
	if rep.ModelName != "feed-forward network" {
		t.Fatalf("auto mode should train the network, got %s", rep.ModelName)
	}
	if rep.RendererName != "plain scatter" {
		t.Fatalf("no asset should fall back to the scatter, got %s", rep.RendererName)
	}
	if rep.Epochs == 0 {
		t.Fatalf("network run should record training epochs")
	}

	for _, v := range []float64{rep.TrainMSE, rep.TrainMAE, rep.TestMSE, rep.TestMAE} {
		if !finiteVal(v) || v < 0 {
			t.Fatalf("partition scores must be finite and non-negative, got %v", v)
		}
	}
	if len(rep.Targets) != 2 || rep.Targets[0].Name != "magnitude" || rep.Targets[1].Name != "depth" {
		t.Fatalf("unexpected targets: %+v", rep.Targets)
	}
	for _, tr := range rep.Targets {
		if !finiteVal(tr.MSE) || tr.MSE < 0 {
			t.Fatalf("target %s MSE must be finite and non-negative, got %v", tr.Name, tr.MSE)
		}
	}
	if rep.Elapsed <= 0 {
		t.Fatalf("elapsed time not recorded")
	}

	requireFile(t, filepath.Join(outDir, "epicenters.png"))
	requireFile(t, filepath.Join(outDir, "parity_magnitude.png"))
	requireFile(t, filepath.Join(outDir, "parity_depth.png"))
	requireFile(t, filepath.Join(outDir, "training_curves.png"))
	requireFile(t, exportPath)
}

func TestExecuteForcedFallback(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "catalog.csv")
	writeFile(t, dataPath, catalogCSV(25))
	outDir := filepath.Join(tmp, "out")
	exportPath := filepath.Join(outDir, "predictions.csv")

	rep, err := Execute(Config{
		DataPath:   dataPath,
		OutDir:     outDir,
		Trainer:    TrainerForest,
		ExportPath: exportPath,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if rep.ModelName != "random forest" {
		t.Fatalf("forced fallback should train the forest, got %s", rep.ModelName)
	}
	if rep.Epochs != 0 {
		t.Fatalf("forest run has no epochs, got %d", rep.Epochs)
	}
	if _, err := os.Stat(filepath.Join(outDir, "training_curves.png")); err == nil {
		t.Fatalf("forest run should not produce training curves")
	}

	// every test row exported with finite predictions for both targets
	f, err := os.Open(exportPath)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if len(records) != rep.TestRows+1 {
		t.Fatalf("export has %d data rows, want %d", len(records)-1, rep.TestRows)
	}
	if len(records[0]) != 7 {
		t.Fatalf("export header has %d columns, want 7: %v", len(records[0]), records[0])
	}
	for _, rec := range records[1:] {
		for _, cell := range rec[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				t.Fatalf("non-numeric export cell %q: %v", cell, err)
			}
			if !finiteVal(v) {
				t.Fatalf("non-finite export value %v in %v", v, rec)
			}
		}
	}
}

func TestExecuteDegenerateCatalog(t *testing.T) {
	tmp := t.TempDir()
	dataPath := filepath.Join(tmp, "catalog.csv")
	writeFile(t, dataPath, degenerateCSV)
	outDir := filepath.Join(tmp, "out")

	_, err := Execute(Config{
		DataPath: dataPath,
		OutDir:   outDir,
		Logger:   quietLogger(),
	})
	if !errors.Is(err, catalog.ErrNoValidRows) {
		t.Fatalf("expected ErrNoValidRows, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "epicenters.png")); err == nil {
		t.Fatalf("degenerate run should stop before rendering figures")
	}
}

func TestExecuteErrors(t *testing.T) {
	tmp := t.TempDir()

	if _, err := Execute(Config{Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error for missing data path")
	}
	if _, err := Execute(Config{DataPath: filepath.Join(tmp, "nope.csv"), Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error for missing catalog file")
	}
	dataPath := filepath.Join(tmp, "catalog.csv")
	writeFile(t, dataPath, catalogCSV(10))
	if _, err := Execute(Config{DataPath: dataPath, Trainer: "banana", Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error for unknown trainer mode")
	}
}

func TestExportPredictionsValidation(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "pred.csv")

	if err := ExportPredictions(path, nil, nil); err == nil {
		t.Fatalf("expected error for nil matrices")
	}

	a := feature.NewMatrix(3, 2)
	b := feature.NewMatrix(2, 2)
	if err := ExportPredictions(path, a, b); err == nil {
		t.Fatalf("expected error for row mismatch")
	}

	wide := feature.NewMatrix(3, 4)
	if err := ExportPredictions(path, wide, wide); err == nil {
		t.Fatalf("expected error for unexpected column count")
	}
}

func TestReportPrint(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	rep := &Report{
		RowsRead:     10,
		RowsUsed:     10,
		TrainRows:    8,
		TestRows:     2,
		RendererName: "plain scatter",
		ModelName:    "feed-forward network",
		Epochs:       12,
		BestEpoch:    4,
		Targets: []TargetReport{
			{Name: "magnitude", Unit: "Mw", MSE: 0.04, R2: 0.8, BaselineR2: 0.5},
			{Name: "depth", Unit: "km", MSE: 120, R2: 0.6, BaselineR2: 0.4},
		},
	}
	rep.Print(logger)

	out := buf.String()
	for _, want := range []string{"feed-forward network", "Target magnitude", "Target depth", "best 5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report output missing %q:\n%s", want, out)
		}
	}
}
