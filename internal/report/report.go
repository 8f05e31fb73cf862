// Package report renders the convergence history of an optimization run to
// an image file: total energy on top, orbital and property errors on a log
// scale below. The output format follows the file extension.
package report

import (
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/scf"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 8 * vg.Inch

	// errorFloor keeps zero errors drawable on the log axis.
	errorFloor = 1e-16
)

// WriteConvergencePlot renders the iteration history to path. Supported
// extensions are .png, .svg and .pdf.
//
// Parameters:
//   - path: The output file; its extension selects the format.
//   - updates: The per-iteration records, in iteration order.
//
// Returns:
//   - error: A ConfigError for an unsupported extension, a wrapped error
//     for rendering or file-system failures.
func WriteConvergencePlot(path string, updates []scf.IterationUpdate) error {
	if len(updates) == 0 {
		return apperrors.NewConfigError("nothing to plot: no completed iterations")
	}

	energyPlot, err := buildEnergyPlot(updates)
	if err != nil {
		return apperrors.WrapError(err, "building energy plot")
	}
	errorPlot, err := buildErrorPlot(updates)
	if err != nil {
		return apperrors.WrapError(err, "building error plot")
	}

	canvas, flush, err := newCanvas(path)
	if err != nil {
		return err
	}

	dc := draw.New(canvas)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 2}
	panels := plot.Align([][]*plot.Plot{{energyPlot}, {errorPlot}}, tiles, dc)
	energyPlot.Draw(panels[0][0])
	errorPlot.Draw(panels[1][0])

	return flush()
}

func buildEnergyPlot(updates []scf.IterationUpdate) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "SCF convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "total energy (hartree)"

	pts := make(plotter.XYs, len(updates))
	for i, u := range updates {
		pts[i].X = float64(u.Iter)
		pts[i].Y = u.Energy.Total
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = plotter.DefaultLineStyle.Color
	p.Add(line, points, plotter.NewGrid())
	return p, nil
}

func buildErrorPlot(updates []scf.IterationUpdate) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "error"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Legend.Top = true

	orb := make(plotter.XYs, len(updates))
	prop := make(plotter.XYs, 0, len(updates))
	for i, u := range updates {
		orb[i].X = float64(u.Iter)
		orb[i].Y = floorAt(u.OrbitalError)
		if u.PropertyError < 1e300 {
			prop = append(prop, plotter.XY{X: float64(u.Iter), Y: floorAt(u.PropertyError)})
		}
	}

	orbLine, err := plotter.NewLine(orb)
	if err != nil {
		return nil, err
	}
	p.Add(orbLine, plotter.NewGrid())
	p.Legend.Add("orbital error", orbLine)

	if len(prop) > 0 {
		propLine, err := plotter.NewLine(prop)
		if err != nil {
			return nil, err
		}
		propLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(propLine)
		p.Legend.Add("energy change", propLine)
	}
	return p, nil
}

func floorAt(v float64) float64 {
	if v < errorFloor {
		return errorFloor
	}
	return v
}

// newCanvas creates the drawing target for path and returns a flush
// function that writes the finished image to disk.
func newCanvas(path string) (vg.CanvasSizer, func() error, error) {
	write := func(to func(f *os.File) error) error {
		f, err := os.Create(path)
		if err != nil {
			return apperrors.WrapError(err, "creating plot file")
		}
		defer f.Close()
		return to(f)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		c := vgimg.New(plotWidth, plotHeight)
		return c, func() error {
			return write(func(f *os.File) error {
				_, err := vgimg.PngCanvas{Canvas: c}.WriteTo(f)
				return err
			})
		}, nil
	case ".svg":
		c := vgsvg.New(plotWidth, plotHeight)
		return c, func() error {
			return write(func(f *os.File) error {
				_, err := c.WriteTo(f)
				return err
			})
		}, nil
	case ".pdf":
		c := vgpdf.New(plotWidth, plotHeight)
		return c, func() error {
			return write(func(f *os.File) error {
				_, err := c.WriteTo(f)
				return err
			})
		}, nil
	default:
		return nil, nil, apperrors.NewConfigError(
			"unsupported plot format %q (use .png, .svg or .pdf)", filepath.Ext(path))
	}
}
