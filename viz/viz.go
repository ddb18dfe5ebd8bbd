package viz

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/seismio/quakecast/catalog"
)

// EventRenderer draws the diagnostic epicenter figure. Two variants exist:
// the map renderer (preferred, needs a coastline asset on disk) and the
// plain scatter fallback. Both are selected once at startup by the
// capability probe; callers are indifferent to which they hold.
type EventRenderer interface {
	Render(c *catalog.Catalog, path string) error
	Name() string
}

// magnitude bands used to color events; each band gets its own scatter and
// legend entry.
var magnitudeBands = []struct {
	label string
	lo    float64
	hi    float64
}{
	{"M < 5", math.Inf(-1), 5},
	{"M 5-6", 5, 6},
	{"M 6-7", 6, 7},
	{"M 7-8", 7, 8},
	{"M >= 8", 8, math.Inf(1)},
}

// MagnitudeColor maps a magnitude to a point color, ramping from cool blue
// at magnitude 4 and below to warm red at magnitude 9 and above.
func MagnitudeColor(mag float64) color.RGBA {
	t := (mag - 4) / 5
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + t*(float64(b)-float64(a)))
	}
	return color.RGBA{
		R: lerp(30, 200),
		G: lerp(80, 30),
		B: lerp(200, 30),
		A: 220,
	}
}

// addEventScatters adds one scatter per magnitude band with a legend
// entry, so the figure reads as a magnitude-colored event map.
func addEventScatters(p *plot.Plot, c *catalog.Catalog) error {
	for _, band := range magnitudeBands {
		var pts plotter.XYs
		for _, ev := range c.Events {
			if !ev.Valid {
				continue
			}
			if ev.Magnitude < band.lo || ev.Magnitude >= band.hi {
				continue
			}
			pts = append(pts, plotter.XY{X: ev.Longitude, Y: ev.Latitude})
		}
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		mid := (band.lo + band.hi) / 2
		if math.IsInf(band.lo, -1) {
			mid = band.hi - 0.5
		}
		if math.IsInf(band.hi, 1) {
			mid = band.lo + 0.5
		}
		sc.GlyphStyle.Color = MagnitudeColor(mid)
		sc.GlyphStyle.Radius = vg.Points(1.6)
		p.Add(sc)
		p.Legend.Add(band.label, sc)
	}
	return nil
}

// ScatterRenderer is the fallback epicenter figure: a plain
// longitude/latitude scatter with the magnitude color bands but no map
// dressing.
type ScatterRenderer struct{}

// Name identifies the renderer variant in reports.
func (ScatterRenderer) Name() string { return "plain scatter" }

// Render writes the scatter PNG to path.
func (ScatterRenderer) Render(c *catalog.Catalog, path string) error {
	p := plot.New()
	p.Title.Text = "Earthquake epicenters"
	p.X.Label.Text = "longitude (deg)"
	p.Y.Label.Text = "latitude (deg)"

	if err := addEventScatters(p, c); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())

	var all plotter.XYs
	for _, ev := range c.Events {
		if ev.Valid {
			all = append(all, plotter.XY{X: ev.Longitude, Y: ev.Latitude})
		}
	}
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = autoRange(all)

	return save(p, path)
}

// CurveData is the subset of training history the curve figure needs: one
// value per epoch for each series.
type CurveData struct {
	TrainLoss []float64
	ValLoss   []float64
	TrainMAE  []float64
	ValMAE    []float64
}

// SaveCurves plots training and validation loss and MAE against epochs.
// Only the network trainer produces a history; the forest fallback has no
// epochs to plot.
func SaveCurves(d CurveData, path string) error {
	if len(d.TrainLoss) == 0 {
		return fmt.Errorf("viz: no epochs to plot")
	}

	p := plot.New()
	p.Title.Text = "Training curves"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss / MAE (standardized units)"

	series := []struct {
		name   string
		vals   []float64
		col    color.RGBA
		dashes []vg.Length
	}{
		{"train loss", d.TrainLoss, color.RGBA{R: 20, G: 80, B: 200, A: 255}, nil},
		{"val loss", d.ValLoss, color.RGBA{R: 20, G: 80, B: 200, A: 255}, []vg.Length{vg.Points(4), vg.Points(3)}},
		{"train MAE", d.TrainMAE, color.RGBA{R: 200, G: 30, B: 30, A: 255}, nil},
		{"val MAE", d.ValMAE, color.RGBA{R: 200, G: 30, B: 30, A: 255}, []vg.Length{vg.Points(4), vg.Points(3)}},
	}
	for _, s := range series {
		if len(s.vals) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.vals))
		for i, v := range s.vals {
			xys[i] = plotter.XY{X: float64(i), Y: v}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = s.col
		line.Width = vg.Points(1.2)
		line.Dashes = s.dashes
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return save(p, path)
}

// SaveParity plots predicted against actual values for one target with an
// identity reference line, both in physical units.
func SaveParity(pred, actual []float64, name, unit, path string) error {
	if len(pred) != len(actual) {
		return fmt.Errorf("viz: %d predictions vs %d actuals", len(pred), len(actual))
	}
	if len(pred) == 0 {
		return fmt.Errorf("viz: no points to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Predicted vs actual %s", name)
	p.X.Label.Text = fmt.Sprintf("actual %s (%s)", name, unit)
	p.Y.Label.Text = fmt.Sprintf("predicted %s (%s)", name, unit)

	pts := make(plotter.XYs, len(pred))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range pred {
		pts[i] = plotter.XY{X: actual[i], Y: pred[i]}
		for _, v := range []float64{actual[i], pred[i]} {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	sc.GlyphStyle.Radius = vg.Points(2.2)
	p.Add(sc)
	p.Legend.Add("predictions", sc)

	// identity reference: a perfect model puts every point on this line
	pad := (hi - lo) * 0.06
	if pad == 0 {
		pad = 1
	}
	ident, err := plotter.NewLine(plotter.XYs{
		{X: lo - pad, Y: lo - pad},
		{X: hi + pad, Y: hi + pad},
	})
	if err != nil {
		return err
	}
	ident.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	ident.Dashes = []vg.Length{vg.Points(5), vg.Points(4)}
	p.Add(ident)
	p.Legend.Add("identity", ident)

	p.Add(plotter.NewGrid())
	p.X.Min, p.X.Max = lo-pad, hi+pad
	p.Y.Min, p.Y.Max = lo-pad, hi+pad

	return save(p, path)
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		if p.X < xmin {
			xmin = p.X
		}
		if p.X > xmax {
			xmax = p.X
		}
		if p.Y < ymin {
			ymin = p.Y
		}
		if p.Y > ymax {
			ymax = p.Y
		}
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

// save ensures the parent directory exists and writes the figure as an
// 8x6 inch PNG.
func save(p *plot.Plot, path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
