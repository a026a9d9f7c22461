package waveform

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RenderPNG writes a voltage-versus-time plot of the record to path. The
// output format follows the file extension, so .png, .svg and .eps all work.
func RenderPNG(r *Record, path string) error {
	if err := r.Validate(); err != nil {
		return err
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("%s  %s", r.Source, r.Acquired.Format("2006-01-02 15:04:05"))
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "voltage (V)"

	times := r.Times()
	volts := r.Volts()
	pts := make(plotter.XYs, len(volts))
	for i := range volts {
		pts[i].X = times[i]
		pts[i].Y = volts[i]
	}

	if err := plotutil.AddLines(p, r.Source, pts); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
