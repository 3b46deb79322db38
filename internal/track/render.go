package track

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// vgimg renders PNGs at 96 DPI.
const pngDPI = 96

var (
	pathColor   = color.RGBA{B: 255, A: 255}
	latestColor = color.RGBA{R: 255, A: 255}
)

// RenderOptions sets the output size of the plot in pixels.
type RenderOptions struct {
	Width  int
	Height int
}

func (o RenderOptions) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 500
	}
	if h <= 0 {
		h = 400
	}
	return vg.Length(w) * vg.Inch / pngDPI, vg.Length(h) * vg.Inch / pngDPI
}

// Render draws the whole track as a connected path with a marker on every
// fix, the latest fix in red, and returns it as a PNG.
func (t *Track) Render(opts RenderOptions) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "GPS Track"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	if b, ok := t.Bounds(); ok {
		xys := make(plotter.XYs, len(t.points))
		for i, pt := range t.points {
			xys[i].X = pt.Lon
			xys[i].Y = pt.Lat
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("track: path: %w", err)
		}
		line.Color = pathColor
		points.Shape = draw.CircleGlyph{}
		points.Color = pathColor
		points.Radius = vg.Points(2)
		p.Add(line, points)

		if last, ok := t.Last(); ok && len(t.points) > 1 {
			latest, err := plotter.NewScatter(plotter.XYs{{X: last.Lon, Y: last.Lat}})
			if err != nil {
				return nil, fmt.Errorf("track: latest fix: %w", err)
			}
			latest.Shape = draw.CircleGlyph{}
			latest.Color = latestColor
			latest.Radius = vg.Points(3)
			p.Add(latest)
		}

		b = drawable(b)
		p.X.Min, p.X.Max = b.MinLon, b.MaxLon
		p.Y.Min, p.Y.Max = b.MinLat, b.MaxLat
	}

	w, h := opts.size()
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, fmt.Errorf("track: canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("track: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawable widens an axis with zero span (repeated identical fixes) so the
// plot still has a visible range.
func drawable(b Bounds) Bounds {
	if b.MaxLon <= b.MinLon {
		b.MinLon -= singlePointBuffer
		b.MaxLon += singlePointBuffer
	}
	if b.MaxLat <= b.MinLat {
		b.MinLat -= singlePointBuffer
		b.MaxLat += singlePointBuffer
	}
	return b
}
