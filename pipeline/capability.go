package pipeline

import (
	"fmt"
	"log"

	"github.com/seismio/quakecast/forest"
	"github.com/seismio/quakecast/neural"
	"github.com/seismio/quakecast/viz"
)

// Trainer modes accepted by Config.Trainer.
const (
	// TrainerAuto prefers the feed-forward network.
	TrainerAuto = "auto"

	// TrainerNetwork selects the feed-forward network explicitly.
	TrainerNetwork = "network"

	// TrainerForest forces the random forest fallback, as if the
	// gradient trainer were unavailable.
	TrainerForest = "forest"
)

// Capabilities holds the two variant choices resolved once at startup:
// the renderer that draws the epicenter figure and the model that trains.
// Everything downstream is indifferent to which variant it got.
type Capabilities struct {
	Renderer viz.EventRenderer
	Model    Model
}

// Probe resolves both variants. Falling back to the plain scatter because
// the coastline asset is missing or unreadable is a degraded path, not an
// error; it is announced on the logger. An unknown trainer mode or an
// invalid trainer configuration is an error.
func Probe(cfg Config, logger *log.Logger) (Capabilities, error) {
	if logger == nil {
		logger = log.Default()
	}
	var caps Capabilities

	if cfg.MapAsset == "" {
		logger.Printf("No coastline asset configured; using the plain scatter renderer")
		caps.Renderer = viz.ScatterRenderer{}
	} else if mr, err := viz.ProbeMap(cfg.MapAsset); err != nil {
		logger.Printf("Map rendering unavailable (%v); using the plain scatter renderer", err)
		caps.Renderer = viz.ScatterRenderer{}
	} else {
		caps.Renderer = mr
	}

	switch cfg.Trainer {
	case "", TrainerAuto, TrainerNetwork:
		net, err := neural.New(cfg.Neural)
		if err != nil {
			return Capabilities{}, fmt.Errorf("failed to configure network trainer: %w", err)
		}
		caps.Model = net
	case TrainerForest:
		logger.Printf("Gradient trainer disabled; using the random forest fallback")
		fr, err := forest.New(cfg.Forest)
		if err != nil {
			return Capabilities{}, fmt.Errorf("failed to configure forest trainer: %w", err)
		}
		caps.Model = fr
	default:
		return Capabilities{}, fmt.Errorf("unknown trainer mode %q", cfg.Trainer)
	}
	return caps, nil
}
