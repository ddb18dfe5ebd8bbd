// Command quakecast trains magnitude and depth predictors from an
// earthquake catalog CSV and writes diagnostic figures plus a console
// report.
//
// The run is configured by CLI flags. -config names an optional JSON file
// whose values fill in any flag the user left unset, so the command line
// always wins over the file.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/seismio/quakecast/pipeline"
)

func main() {
	dataPath := flag.String("data", "database.csv", "earthquake catalog CSV (Date, Time, Latitude, Longitude, Depth, Magnitude)")
	outDir := flag.String("out", "out", "output directory for figures and exports")
	seed := flag.Int64("seed", 42, "random seed for the train/test split and the trainers")
	testFrac := flag.Float64("test-frac", 0.2, "fraction of rows held out for testing")
	trainer := flag.String("trainer", "auto", "trainer variant: auto, network or forest")
	mapAsset := flag.String("map-asset", "", "coastline polyline file enabling the map renderer (empty = plain scatter)")
	exportPath := flag.String("export", "", "if set, write the test predictions CSV to this path")

	// network tunables
	epochs := flag.Int("epochs", 100, "training epoch cap for the network")
	batchSize := flag.Int("batch", 32, "mini-batch size for the network")
	learningRate := flag.Float64("lr", 0.001, "Adam learning rate for the network")
	dropout := flag.Float64("dropout", 0.2, "dropout probability after each hidden layer (negative disables)")
	patience := flag.Int("patience", 10, "epochs without validation improvement before early stop")

	// forest tunables
	trees := flag.Int("trees", 100, "number of trees in the forest fallback")
	maxDepth := flag.Int("max-depth", 12, "maximum tree depth in the forest fallback")

	configPath := flag.String("config", "", "optional JSON file filling in flags left unset on the command line")
	printConfig := flag.Bool("print-effective-config", false, "print the merged effective configuration and exit")

	flag.Parse()

	// flags the user set explicitly keep precedence over the JSON file
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("failed to read config %s: %v", *configPath, err)
		}
		var raw struct {
			Data     *string  `json:"data"`
			Out      *string  `json:"out"`
			Seed     *int64   `json:"seed"`
			TestFrac *float64 `json:"test_frac"`
			Trainer  *string  `json:"trainer"`
			MapAsset *string  `json:"map_asset"`
			Export   *string  `json:"export"`
			Network  *struct {
				Epochs       *int     `json:"epochs"`
				BatchSize    *int     `json:"batch_size"`
				LearningRate *float64 `json:"learning_rate"`
				Dropout      *float64 `json:"dropout"`
				Patience     *int     `json:"patience"`
			} `json:"network"`
			Forest *struct {
				Trees    *int `json:"trees"`
				MaxDepth *int `json:"max_depth"`
			} `json:"forest"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Fatalf("failed to parse config %s: %v", *configPath, err)
		}

		if raw.Data != nil && !setFlags["data"] {
			*dataPath = *raw.Data
		}
		if raw.Out != nil && !setFlags["out"] {
			*outDir = *raw.Out
		}
		if raw.Seed != nil && !setFlags["seed"] {
			*seed = *raw.Seed
		}
		if raw.TestFrac != nil && !setFlags["test-frac"] {
			*testFrac = *raw.TestFrac
		}
		if raw.Trainer != nil && !setFlags["trainer"] {
			*trainer = *raw.Trainer
		}
		if raw.MapAsset != nil && !setFlags["map-asset"] {
			*mapAsset = *raw.MapAsset
		}
		if raw.Export != nil && !setFlags["export"] {
			*exportPath = *raw.Export
		}
		if raw.Network != nil {
			if raw.Network.Epochs != nil && !setFlags["epochs"] {
				*epochs = *raw.Network.Epochs
			}
			if raw.Network.BatchSize != nil && !setFlags["batch"] {
				*batchSize = *raw.Network.BatchSize
			}
			if raw.Network.LearningRate != nil && !setFlags["lr"] {
				*learningRate = *raw.Network.LearningRate
			}
			if raw.Network.Dropout != nil && !setFlags["dropout"] {
				*dropout = *raw.Network.Dropout
			}
			if raw.Network.Patience != nil && !setFlags["patience"] {
				*patience = *raw.Network.Patience
			}
		}
		if raw.Forest != nil {
			if raw.Forest.Trees != nil && !setFlags["trees"] {
				*trees = *raw.Forest.Trees
			}
			if raw.Forest.MaxDepth != nil && !setFlags["max-depth"] {
				*maxDepth = *raw.Forest.MaxDepth
			}
		}
		log.Printf("Loaded config overlay from %s", *configPath)
	}

	cfg := pipeline.Config{
		DataPath:     *dataPath,
		OutDir:       *outDir,
		Seed:         *seed,
		TestFraction: *testFrac,
		Trainer:      *trainer,
		MapAsset:     *mapAsset,
		ExportPath:   *exportPath,
	}
	cfg.Neural.Epochs = *epochs
	cfg.Neural.BatchSize = *batchSize
	cfg.Neural.LearningRate = *learningRate
	cfg.Neural.Dropout = *dropout
	cfg.Neural.Patience = *patience
	cfg.Forest.Trees = *trees
	cfg.Forest.MaxDepth = *maxDepth

	if *printConfig {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			log.Fatalf("failed to print effective config: %v", err)
		}
		return
	}

	rep, err := pipeline.Execute(cfg)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	rep.Print(log.Default())
}
