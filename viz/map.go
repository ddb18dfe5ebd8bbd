package viz

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/seismio/quakecast/catalog"
)

// MapRenderer draws events over an equirectangular world map: graticules
// every 30 degrees with coastline polylines read from an asset file, and
// the magnitude-colored event scatter on top.
type MapRenderer struct {
	coast []plotter.XYs
}

// ProbeMap resolves the map-rendering capability. The coastline asset at
// assetPath must exist and contain at least one polyline; otherwise an
// error describes why the capability is unavailable and the caller falls
// back to the plain scatter renderer.
func ProbeMap(assetPath string) (*MapRenderer, error) {
	segs, err := ParseCoastline(assetPath)
	if err != nil {
		return nil, err
	}
	return &MapRenderer{coast: segs}, nil
}

// ParseCoastline reads a multi-segment polyline file: one "lon lat" pair
// per line, with blank lines or lines starting with ">" separating
// segments and "#" marking comments. GMT/NOAA coastline extracts use this
// layout. Segments with fewer than two points are dropped.
func ParseCoastline(path string) ([]plotter.XYs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open coastline asset %s: %w", path, err)
	}
	defer f.Close()

	var segs []plotter.XYs
	var cur plotter.XYs
	flush := func() {
		if len(cur) >= 2 {
			segs = append(segs, cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ">") {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("coastline asset %s line %d: want \"lon lat\", got %q", path, lineNo, line)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("coastline asset %s line %d: bad longitude: %w", path, lineNo, err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("coastline asset %s line %d: bad latitude: %w", path, lineNo, err)
		}
		cur = append(cur, plotter.XY{X: lon, Y: lat})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read coastline asset %s: %w", path, err)
	}
	flush()

	if len(segs) == 0 {
		return nil, fmt.Errorf("no coastline segments in %s", path)
	}
	return segs, nil
}

// Name identifies the renderer variant in reports.
func (r *MapRenderer) Name() string { return "map projection" }

// Render writes the map PNG to path. The plot is a plate carree
// projection: longitude and latitude map straight to the axes, so the
// world occupies a fixed frame and the coastlines stay recognizable.
func (r *MapRenderer) Render(c *catalog.Catalog, path string) error {
	p := plot.New()
	p.Title.Text = "Earthquake epicenters"
	p.X.Label.Text = "longitude (deg)"
	p.Y.Label.Text = "latitude (deg)"

	// graticules every 30 degrees
	grat := color.RGBA{R: 200, G: 200, B: 200, A: 120}
	for lon := -180.0; lon <= 180; lon += 30 {
		line, err := plotter.NewLine(plotter.XYs{{X: lon, Y: -90}, {X: lon, Y: 90}})
		if err != nil {
			return err
		}
		line.Color = grat
		line.Width = vg.Points(0.5)
		p.Add(line)
	}
	for lat := -90.0; lat <= 90; lat += 30 {
		line, err := plotter.NewLine(plotter.XYs{{X: -180, Y: lat}, {X: 180, Y: lat}})
		if err != nil {
			return err
		}
		line.Color = grat
		line.Width = vg.Points(0.5)
		p.Add(line)
	}

	// coastline polylines
	coastCol := color.RGBA{R: 90, G: 90, B: 90, A: 255}
	for _, seg := range r.coast {
		line, err := plotter.NewLine(seg)
		if err != nil {
			return err
		}
		line.Color = coastCol
		line.Width = vg.Points(0.7)
		p.Add(line)
	}

	if err := addEventScatters(p, c); err != nil {
		return err
	}

	// fixed world frame
	p.X.Min, p.X.Max = -185, 185
	p.Y.Min, p.Y.Max = -92, 92

	return save(p, path)
}
